// Command upload_sample is the thin sample client from spec §1: it
// dials the middle tier, sends a single upload_files request describing
// the files under source_folder, streams their bytes on the same
// message_line session, and waits for the indication_id's
// transfer_condition to complete.
//
// Grounded on upload_sample/upload_sample.cpp's connection-triggered
// request_upload_files flow in original_source, generalized from a
// promise/future pair to a single-shot channel per spec §9's terminal
// signalling design note.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kcenon/file-manager/internal/config"
	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/logging"
	"github.com/kcenon/file-manager/internal/session"
	"github.com/kcenon/file-manager/pkg/fsutil"
)

func main() {
	var (
		sourceFolder string
		targetFolder string
		serverIP     string
		serverPort   int
		connKey      string
		indicationID string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "upload_sample",
		Short: "Upload the files under source_folder to main_server and wait for completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			setIfChanged(cmd, "source-folder", "SOURCE_FOLDER", sourceFolder)
			setIfChanged(cmd, "target-folder", "TARGET_FOLDER", targetFolder)
			setIfChanged(cmd, "server-ip", "SERVER_IP", serverIP)
			setIfChanged(cmd, "server-port", "SERVER_PORT", serverPort)
			setIfChanged(cmd, "connection-key", "CONNECTION_KEY", connKey)
			setIfChanged(cmd, "logging-level", "LOGGING_LEVEL", logLevel)

			cfg, err := config.LoadSampleDriver()
			if err != nil {
				return err
			}
			log := logging.New(logging.Options{
				LogFilePath:      "upload_sample.log",
				Level:            cfg.LoggingLevel(),
				WriteConsole:     cfg.WriteConsole(),
				WriteConsoleOnly: cfg.WriteConsoleOnly(),
			})

			entries, err := fsutil.Enumerate(cfg.SourceFolder(), cfg.TargetFolder())
			if err != nil {
				return fmt.Errorf("upload_sample: enumerating %q: %w", cfg.SourceFolder(), err)
			}
			if len(entries) == 0 {
				log.Error("there is no file", "source_folder", cfg.SourceFolder())
				return nil
			}
			if indicationID == "" {
				indicationID = uuid.NewString()
			}

			done := make(chan bool, 1)
			connector := session.NewConnector(session.Options{
				Self:              session.Identity{ID: "upload_sample", SubID: ""},
				SessionType:       session.MessageLine,
				ConnectionKey:     cfg.ConnectionKey(),
				Compress:          cfg.CompressMode(),
				Encrypt:           cfg.EncryptMode(),
				CompressBlockSize: cfg.CompressBlockSize(),
				Workers: session.WorkerCounts{
					High:   cfg.HighPriorityCount(),
					Normal: cfg.NormalPriorityCount(),
					Low:    cfg.LowPriorityCount(),
				},
			})
			connector.SetFileSource(fsutil.OSFileStore{})
			connector.SetConnectionNotification(func(targetID, targetSubID string, condition bool) {
				log.Info("middle_server connection", "target_id", targetID, "connected", condition)
			})
			connector.SetMessageNotification(func(msg *container.Container) {
				handleTransferCondition(msg, indicationID, log, done)
			})

			connector.Start(cfg.ServerIP(), cfg.ServerPort(), cfg.HighPriorityCount(), cfg.NormalPriorityCount(), cfg.LowPriorityCount())
			defer connector.Stop()

			ep, err := waitConfirmed(connector, 10*time.Second)
			if err != nil {
				return fmt.Errorf("upload_sample: %w", err)
			}

			msg := container.New("", "", "main_server", "", "upload_files")
			msg.Add(container.NewString("indication_id", indicationID))
			transfers := make([]session.TransferEntry, 0, len(entries))
			for _, e := range entries {
				entry := container.New("", "", "", "", "entry")
				entry.Add(container.NewString("source", e.Source))
				entry.Add(container.NewString("target", e.Target))
				msg.Add(container.NewContainer("files", entry))
				transfers = append(transfers, session.TransferEntry{IndicationID: indicationID, Source: e.Source, Target: e.Target})
			}
			if err := ep.Send(msg); err != nil {
				return fmt.Errorf("upload_sample: sending upload_files: %w", err)
			}
			if err := ep.SendFiles(transfers); err != nil {
				return fmt.Errorf("upload_sample: streaming files: %w", err)
			}

			select {
			case ok := <-done:
				if !ok {
					return fmt.Errorf("upload_sample: indication_id %q completed with failures", indicationID)
				}
				return nil
			case <-time.After(2 * time.Minute):
				return fmt.Errorf("upload_sample: timed out waiting for indication_id %q", indicationID)
			}
		},
	}

	cmd.Flags().StringVar(&sourceFolder, "source-folder", "", "local folder to upload")
	cmd.Flags().StringVar(&targetFolder, "target-folder", "", "remote-side folder to write into")
	cmd.Flags().StringVar(&serverIP, "server-ip", "", "middle_server dial address")
	cmd.Flags().IntVar(&serverPort, "server-port", 0, "middle_server dial port")
	cmd.Flags().StringVar(&connKey, "connection-key", "", "pre-shared handshake key")
	cmd.Flags().StringVar(&indicationID, "indication-id", "", "indication_id to use (defaults to a fresh uuid)")
	cmd.Flags().StringVar(&logLevel, "logging-level", "", "log level (debug|info|warn|error)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setIfChanged(cmd *cobra.Command, flag, env string, value any) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	os.Setenv(env, fmt.Sprintf("%v", value))
}

// waitConfirmed polls for the connector's handshake to complete; see
// download_sample's copy of this helper for why the send can't happen
// from inside the connection-notification callback itself.
func waitConfirmed(connector *session.Connector, timeout time.Duration) (*session.Endpoint, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ep := connector.Endpoint(); ep != nil && ep.Condition() == session.ConditionConfirmed {
			return ep, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil, fmt.Errorf("timed out waiting for a confirmed session")
}

// handleTransferCondition mirrors upload_sample.cpp's
// transfer_condition handler.
func handleTransferCondition(msg *container.Container, wantIndicationID string, log *slog.Logger, done chan<- bool) {
	if msg.Header.MessageType != "transfer_condition" {
		return
	}
	indicationID, _ := stringValue(msg, "indication_id")
	if indicationID != wantIndicationID {
		return
	}
	pct, _ := uint64Value(msg, "percentage")
	if pct == 0 {
		log.Info("upload started", "indication_id", indicationID)
		return
	}
	completed, _ := boolValue(msg, "completed")
	log.Info("upload progress", "indication_id", indicationID, "percentage", pct)
	if completed {
		log.Info("upload completed", "indication_id", indicationID)
		done <- true
		return
	}
	if pct == 100 {
		log.Info("upload completed with failures", "indication_id", indicationID)
		done <- false
	}
}

func stringValue(msg *container.Container, name string) (string, bool) {
	v, ok := msg.Lookup(name)
	if !ok {
		return "", false
	}
	return v.String()
}

func uint64Value(msg *container.Container, name string) (uint64, bool) {
	v, ok := msg.Lookup(name)
	if !ok {
		return 0, false
	}
	return v.Uint64()
}

func boolValue(msg *container.Container, name string) (bool, bool) {
	v, ok := msg.Lookup(name)
	if !ok {
		return false, false
	}
	return v.Bool()
}
