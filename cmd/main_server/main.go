// Command main_server is the storage-tier sample driver from spec §1:
// it accepts the middle tier's data_line and file_line sessions,
// serves file downloads with session.Endpoint.SendFiles, and writes
// uploaded files to disk via pkg/fsutil.OSFileStore.
//
// Grounded on result17-lanFileShare/cmd/lanfilesharer/main.go's cobra
// root-command-plus-flags shape; the handler wiring follows
// main_server/main_server.cpp's received_message/upload_files/
// received_file trio in original_source.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kcenon/file-manager/internal/config"
	"github.com/kcenon/file-manager/internal/container"
	"github.com/kcenon/file-manager/internal/logging"
	"github.com/kcenon/file-manager/internal/session"
	"github.com/kcenon/file-manager/pkg/fsutil"
)

func main() {
	var (
		port         int
		connKey      string
		sessionLimit int
		logFile      string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "main_server",
		Short: "Storage-tier server accepting the middle tier's data_line and file_line sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			setIfChanged(cmd, "port", "MAIN_SERVER_PORT", port)
			setIfChanged(cmd, "connection-key", "CONNECTION_KEY", connKey)
			setIfChanged(cmd, "session-limit", "SESSION_LIMIT_COUNT", sessionLimit)
			setIfChanged(cmd, "logging-level", "LOGGING_LEVEL", logLevel)

			cfg, err := config.LoadMainServer()
			if err != nil {
				return err
			}
			if logFile == "" {
				logFile = "main_server.log"
			}
			log := logging.New(logging.Options{
				LogFilePath:      logFile,
				Level:            cfg.LoggingLevel(),
				WriteConsole:     cfg.WriteConsole(),
				WriteConsoleOnly: cfg.WriteConsoleOnly(),
			})

			srv := newMainServer(cfg, log)
			if err := srv.acceptor.Listen(cfg.Port()); err != nil {
				return fmt.Errorf("main_server: %w", err)
			}
			log.Info("main_server listening", "port", cfg.Port())
			srv.acceptor.WaitStop()
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 9000, "port to listen on")
	cmd.Flags().StringVar(&connKey, "connection-key", "", "pre-shared handshake key")
	cmd.Flags().IntVar(&sessionLimit, "session-limit", 0, "maximum concurrent sessions (0 = unlimited)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file path")
	cmd.Flags().StringVar(&logLevel, "logging-level", "", "log level (debug|info|warn|error)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type mainServer struct {
	acceptor *session.Acceptor
	store    fsutil.OSFileStore
}

func newMainServer(cfg *config.MainServer, log *slog.Logger) *mainServer {
	opts := session.Options{
		SessionType:       session.MessageLine,
		AcceptedTypes:     []session.Type{session.MessageLine, session.FileLine},
		ConnectionKey:     cfg.ConnectionKey(),
		Compress:          cfg.CompressMode(),
		Encrypt:           cfg.EncryptMode(),
		CompressBlockSize: cfg.CompressBlockSize(),
		Workers: session.WorkerCounts{
			High:   cfg.HighPriorityCount(),
			Normal: cfg.NormalPriorityCount(),
			Low:    cfg.LowPriorityCount(),
		},
	}
	acceptor := session.NewAcceptor(opts, cfg.SessionLimitCount(), opts.Workers)

	s := &mainServer{acceptor: acceptor}
	acceptor.SetFileSource(s.store)
	acceptor.SetFileSink(s.store)
	acceptor.SetSessionConnectionNotification(func(ep *session.Endpoint, targetID, targetSubID string, condition bool) {
		log.Info("peer connection", "target_id", targetID, "target_sub_id", targetSubID, "connected", condition)
	})
	acceptor.SetSessionMessageNotification(func(ep *session.Endpoint, msg *container.Container) {
		s.onMessage(ep, msg, log)
	})
	acceptor.SetSessionFileNotification(func(ep *session.Endpoint, targetID, targetSubID, indicationID, targetPath string) {
		log.Info("file received", "indication_id", indicationID, "target_path", targetPath)
	})
	return s
}

func (s *mainServer) onMessage(ep *session.Endpoint, msg *container.Container, log *slog.Logger) {
	switch msg.Header.MessageType {
	case "request_files":
		s.handleRequestFiles(ep, msg, log)
	case "upload_files":
		s.handleUploadFiles(ep, msg, log)
	default:
		log.Info("unhandled message", "message_type", msg.Header.MessageType)
	}
}

// handleRequestFiles answers a download request by streaming every
// requested file back over the file_line, per original_source's
// transfer_file handler.
func (s *mainServer) handleRequestFiles(ep *session.Endpoint, msg *container.Container, log *slog.Logger) {
	indicationID, _ := stringValue(msg, "indication_id")
	var entries []session.TransferEntry
	for _, v := range msg.LookupArray("files") {
		nested, ok := v.Container()
		if !ok {
			continue
		}
		source, _ := stringValue(nested, "source")
		target, _ := stringValue(nested, "target")
		entries = append(entries, session.TransferEntry{IndicationID: indicationID, Source: source, Target: target})
	}
	if err := ep.SendFiles(entries); err != nil {
		log.Error("sending files", "indication_id", indicationID, "error", err)
	}
}

// handleUploadFiles acknowledges an upload request with an initial
// transfer_condition and relies on the acceptor's FileSink (already
// wired to OSFileStore) to write incoming file bytes to target paths;
// file arrival is reported through SetSessionFileNotification above.
func (s *mainServer) handleUploadFiles(ep *session.Endpoint, msg *container.Container, log *slog.Logger) {
	indicationID, _ := stringValue(msg, "indication_id")
	gatewayID, _ := stringValue(msg, "gateway_source_id")
	gatewaySubID, _ := stringValue(msg, "gateway_source_sub_id")

	ack := container.New("", "", gatewayID, gatewaySubID, "transfer_condition")
	ack.Add(container.NewString("indication_id", indicationID))
	ack.Add(container.NewU32("percentage", 0))
	if err := ep.Send(ack); err != nil {
		log.Error("acking upload_files", "indication_id", indicationID, "error", err)
	}
}

func stringValue(msg *container.Container, name string) (string, bool) {
	v, ok := msg.Lookup(name)
	if !ok {
		return "", false
	}
	return v.String()
}

func setIfChanged(cmd *cobra.Command, flag, env string, value any) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	os.Setenv(env, fmt.Sprintf("%v", value))
}
