// Command middle_server is the middle-tier sample driver from spec §1:
// it accepts downstream gateway/sample-client sessions, dials the
// main tier on two upstream client sessions (data_line, file_line),
// and wires internal/router between them.
//
// Grounded on result17-lanFileShare/cmd/lanfilesharer/main.go's cobra
// shape; the two-connector-plus-acceptor wiring follows
// middle_server/middle_server.cpp's create_file_line/create_middle_server
// pair in original_source.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kcenon/file-manager/internal/config"
	"github.com/kcenon/file-manager/internal/logging"
	"github.com/kcenon/file-manager/internal/router"
	"github.com/kcenon/file-manager/internal/session"
)

func main() {
	var (
		port         int
		connKey      string
		mainIP       string
		mainPort     int
		sessionLimit int
		logFile      string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "middle_server",
		Short: "Router tier bridging downstream clients to the main_server tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			setIfChanged(cmd, "port", "MIDDLE_SERVER_PORT", port)
			setIfChanged(cmd, "connection-key", "CONNECTION_KEY", connKey)
			setIfChanged(cmd, "main-server-ip", "MAIN_SERVER_IP", mainIP)
			setIfChanged(cmd, "main-server-port", "MAIN_SERVER_PORT", mainPort)
			setIfChanged(cmd, "session-limit", "SESSION_LIMIT_COUNT", sessionLimit)
			setIfChanged(cmd, "logging-level", "LOGGING_LEVEL", logLevel)

			cfg, err := config.LoadMiddleServer()
			if err != nil {
				return err
			}
			if logFile == "" {
				logFile = "middle_server.log"
			}
			log := logging.New(logging.Options{
				LogFilePath:      logFile,
				Level:            cfg.LoggingLevel(),
				WriteConsole:     cfg.WriteConsole(),
				WriteConsoleOnly: cfg.WriteConsoleOnly(),
			})

			workers := session.WorkerCounts{
				High:   cfg.HighPriorityCount(),
				Normal: cfg.NormalPriorityCount(),
				Low:    cfg.LowPriorityCount(),
			}
			self := session.Identity{ID: "middle_server", SubID: uuid.NewString()}

			dataLine := session.NewConnector(session.Options{
				Self:              self,
				SessionType:       session.MessageLine,
				ConnectionKey:     cfg.ConnectionKey(),
				Compress:          cfg.CompressMode(),
				Encrypt:           cfg.EncryptMode(),
				CompressBlockSize: cfg.CompressBlockSize(),
				Workers:           workers,
				Bridge:            true,
			})
			fileLine := session.NewConnector(session.Options{
				Self:              self,
				SessionType:       session.FileLine,
				ConnectionKey:     cfg.ConnectionKey(),
				Compress:          cfg.CompressMode(),
				Encrypt:           cfg.EncryptMode(),
				CompressBlockSize: cfg.CompressBlockSize(),
				Workers:           workers,
				Bridge:            true,
			})

			downstream := session.NewAcceptor(session.Options{
				SessionType:       session.MessageLine,
				AcceptedTypes:     []session.Type{session.MessageLine},
				ConnectionKey:     cfg.ConnectionKey(),
				Compress:          cfg.CompressMode(),
				Encrypt:           cfg.EncryptMode(),
				CompressBlockSize: cfg.CompressBlockSize(),
				Workers:           workers,
			}, cfg.SessionLimitCount(), workers)

			router.New(dataLine, fileLine, self, downstream, log)

			dataLine.Start(cfg.MainServerIP(), cfg.MainServerPort(), workers.High, workers.Normal, workers.Low)
			fileLine.Start(cfg.MainServerIP(), cfg.MainServerPort(), workers.High, workers.Normal, workers.Low)

			if err := downstream.Listen(cfg.Port()); err != nil {
				return fmt.Errorf("middle_server: %w", err)
			}
			log.Info("middle_server listening", "port", cfg.Port(), "main_server", fmt.Sprintf("%s:%d", cfg.MainServerIP(), cfg.MainServerPort()))
			downstream.WaitStop()
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 9100, "port to listen on for downstream clients")
	cmd.Flags().StringVar(&connKey, "connection-key", "", "pre-shared handshake key")
	cmd.Flags().StringVar(&mainIP, "main-server-ip", "", "main_server dial address")
	cmd.Flags().IntVar(&mainPort, "main-server-port", 0, "main_server dial port")
	cmd.Flags().IntVar(&sessionLimit, "session-limit", 0, "maximum concurrent downstream sessions (0 = unlimited)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "log file path")
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
