package cli

import (
	"errors"
	"flag"
	"os"
	"strings"
)

func parseGetArgs(args []string) (getOptions, string, error) {
	getFS := flag.NewFlagSet("get", flag.ContinueOnError)
	getFS.SetOutput(os.Stderr)

	var opts getOptions
	getFS.StringVar(&opts.Output, "o", "", "write the object to this path (- for stdout; default: base name of key)")

	if err := getFS.Parse(args); err != nil {
		return getOptions{}, "", err
	}

	rest := getFS.Args()
	if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
		return getOptions{}, "", errors.New("usage: s3drive get [-o path] <key>")
	}
	return opts, rest[0], nil
}

func parsePutArgs(args []string) (putOptions, string, error) {
	putFS := flag.NewFlagSet("put", flag.ContinueOnError)
	putFS.SetOutput(os.Stderr)

	var opts putOptions
	putFS.StringVar(&opts.Key, "key", "", "object key (default: base name of file)")

	if err := putFS.Parse(args); err != nil {
		return putOptions{}, "", err
	}

	rest := putFS.Args()
	if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
		return putOptions{}, "", errors.New("usage: s3drive put [-key name] <file>")
	}
	return opts, rest[0], nil
}

func parseRemoveArgs(args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", errors.New("usage: s3drive rm <key>")
	}
	return args[0], nil
}

func parseHashPasswordArgs(args []string) (string, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		return args[0], nil
	default:
		return "", errors.New("usage: s3drive hash-password [password]")
	}
}
