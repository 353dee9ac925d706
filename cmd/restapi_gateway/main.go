// Command restapi_gateway is the REST-facing sample driver from spec
// §1/§4.8: it dials the middle tier on a message_line session and
// serves internal/restapi's gin.Engine over HTTP.
//
// Grounded on result17-lanFileShare/cmd/lanfilesharer/main.go's cobra
// shape; the dial-then-serve sequencing follows
// restapi_gateway/restapi_gateway.cpp's connection-notification-gated
// startup in original_source.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kcenon/file-manager/internal/config"
	"github.com/kcenon/file-manager/internal/logging"
	"github.com/kcenon/file-manager/internal/restapi"
	"github.com/kcenon/file-manager/internal/session"
)

func main() {
	var (
		restPort   int
		connKey    string
		middleIP   string
		middlePort int
		logFile    string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "restapi_gateway",
		Short: "HTTP front end bridging REST clients to the middle tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			setIfChanged(cmd, "rest-port", "REST_PORT", restPort)
			setIfChanged(cmd, "connection-key", "CONNECTION_KEY", connKey)
			setIfChanged(cmd, "middle-server-ip", "MIDDLE_SERVER_IP", middleIP)
			setIfChanged(cmd, "middle-server-port", "MIDDLE_SERVER_PORT", middlePort)
			setIfChanged(cmd, "logging-level", "LOGGING_LEVEL", logLevel)

			cfg, err := config.LoadRestGateway()
			if err != nil {
				return err
			}
			if logFile == "" {
				logFile = "restapi_gateway.log"
			}
			log := logging.New(logging.Options{
				LogFilePath:      logFile,
				Level:            cfg.LoggingLevel(),
				WriteConsole:     cfg.WriteConsole(),
				WriteConsoleOnly: cfg.WriteConsoleOnly(),
			})

			connector := session.NewConnector(session.Options{
				Self:              session.Identity{ID: "restapi_gateway", SubID: uuid.NewString()},
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
			gateway := restapi.New(connector)

			connector.SetConnectionNotification(func(targetID, targetSubID string, condition bool) {
				log.Info("middle_server connection", "target_id", targetID, "connected", condition)
			})
			connector.Start(cfg.MiddleServerIP(), cfg.MiddleServerPort(), cfg.HighPriorityCount(), cfg.NormalPriorityCount(), cfg.LowPriorityCount())
			defer connector.Stop()

			log.Info("restapi_gateway listening", "port", cfg.RestPort(), "middle_server", fmt.Sprintf("%s:%d", cfg.MiddleServerIP(), cfg.MiddleServerPort()))
			return http.ListenAndServe(fmt.Sprintf(":%d", cfg.RestPort()), gateway.Router())
		},
	}

	cmd.Flags().IntVar(&restPort, "rest-port", 8080, "HTTP port to listen on")
	cmd.Flags().StringVar(&connKey, "connection-key", "", "pre-shared handshake key")
	cmd.Flags().StringVar(&middleIP, "middle-server-ip", "", "middle_server dial address")
	cmd.Flags().IntVar(&middlePort, "middle-server-port", 0, "middle_server dial port")
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
