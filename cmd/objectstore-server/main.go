package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kelindar/objectstore/internal/blockstore"
	"github.com/kelindar/objectstore/internal/config"
	"github.com/kelindar/objectstore/internal/ingest"
	"github.com/kelindar/objectstore/internal/s3api"
	"github.com/kelindar/objectstore/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultServer()

	cmd := &cobra.Command{
		Use:   "objectstore-server",
		Short: "Runs the S3-compatible object ingestion server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address to listen on")
	flags.IntVar(&cfg.Ingest.BlockSize, "block-size", cfg.Ingest.BlockSize, "target block size in bytes")
	flags.IntVar(&cfg.Ingest.InlineThreshold, "inline-threshold", cfg.Ingest.InlineThreshold, "inline storage threshold in bytes")
	return cmd
}

func runServe(cfg config.Server) error {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	blocks := blockstore.NewMemory()
	objects := store.NewObjectTable()
	versions := store.NewVersionTable()
	blockrefs := store.NewBlockRefTable()
	counters := store.NewCounterTable()
	buckets := store.NewBucketRegistry()

	lifecycle := ingest.NewLifecycle(cfg.Ingest, blocks, objects, versions, blockrefs, counters, buckets)
	multipart := ingest.NewMultipart(cfg.Ingest, blocks, objects, versions, blockrefs, counters, buckets)
	server := s3api.NewServer(lifecycle, multipart, objects, versions, blocks)

	log.Info().Str("addr", cfg.ListenAddr).Msg("starting object store server")
	return http.ListenAndServe(cfg.ListenAddr, server)
}
