package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"redisk/internal/server"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var port int
	var replicaOf string

	root := &cobra.Command{
		Use:   "server",
		Short: "A minimal RESP key/value server with single-leader replication",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := server.DefaultConfig()
			cfg.Port = port
			cfg.ReplicaOf = replicaOf

			srv, err := server.New(cfg, log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutting down")
				cancel()
			}()

			log.WithField("port", cfg.Port).Info("starting server")
			return srv.ListenAndServe(ctx)
		},
	}

	root.Flags().IntVar(&port, "port", 6379, "listening port")
	root.Flags().StringVar(&replicaOf, "replicaof", "", `enable replica mode: "<host> <port>"`)

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}
