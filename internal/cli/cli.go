package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"s3drive/internal/config"
	"s3drive/internal/state"
	"s3drive/internal/storage"
)

func Run(args []string) error {
	fs := flag.NewFlagSet("s3drive", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configPath, err := state.ConfigPath()
	if err != nil {
		return err
	}
	fs.StringVar(&configPath, "config", configPath, "path to config file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return usageError()
	}

	if rest[0] == "hash-password" {
		password, err := parseHashPasswordArgs(rest[1:])
		if err != nil {
			return err
		}
		return hashPassword(password)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch rest[0] {
	case "ls":
		if len(rest) != 1 {
			return errors.New("usage: s3drive ls")
		}
		store, err := objectStoreFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		return listObjects(ctx, store)
	case "get":
		opts, key, err := parseGetArgs(rest[1:])
		if err != nil {
			return err
		}
		store, err := objectStoreFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		return getObject(ctx, store, key, opts)
	case "put":
		opts, path, err := parsePutArgs(rest[1:])
		if err != nil {
			return err
		}
		store, err := objectStoreFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		return putObject(ctx, store, path, opts)
	case "rm":
		key, err := parseRemoveArgs(rest[1:])
		if err != nil {
			return err
		}
		store, err := objectStoreFromConfig(ctx, cfg)
		if err != nil {
			return err
		}
		return removeObject(ctx, store, key)
	default:
		return usageError()
	}
}

func usageError() error {
	return errors.New("usage: s3drive [-config path] ls | get [-o path] <key> | put [-key name] <file> | rm <key> | hash-password [password]")
}

func objectStoreFromConfig(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	localDir, err := state.LocalBucketDir()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFromConfig(ctx, cfg, localDir)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return store, nil
}
