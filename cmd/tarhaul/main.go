// Package main implements the tarhaul CLI: an "archive" subcommand running
// the full Source -> Batcher -> Archiver Worker -> Sink pipeline, and a
// "restore" subcommand exercising the ranged-restore inverse contract.
// Command structure uses cobra.Command: one root command and subcommands
// each owning their own flag set.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coldline/tarvault/cloud"
	"github.com/coldline/tarvault/config"
	"github.com/coldline/tarvault/coordinator"
	"github.com/coldline/tarvault/manifest"
	"github.com/coldline/tarvault/metrics"
	"github.com/coldline/tarvault/restore"
	"github.com/coldline/tarvault/sink"
	"github.com/coldline/tarvault/source"
)

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "tarhaul",
		Short: "tarhaul archives files into byte-range-indexed TAR bundles",
	}
	root.AddCommand(buildArchiveCommand())
	root.AddCommand(buildRestoreCommand())
	return root
}

var flagConfigFile string

func buildArchiveCommand() *cobra.Command {
	cfg := config.Default()
	var compress bool

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive a source tree or object-store prefix into TAR bundles plus manifests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Compress = compress
			if flagConfigFile != "" {
				// Flags given on the command line win over file values:
				// remember them, load the file, then apply them again.
				explicit := map[string]string{}
				cmd.Flags().Visit(func(f *pflag.Flag) { explicit[f.Name] = f.Value.String() })
				loaded, err := config.LoadFile(cfg, flagConfigFile)
				if err != nil {
					return fmt.Errorf("load config file: %w", err)
				}
				cfg = loaded
				for name, value := range explicit {
					if err := cmd.Flags().Set(name, value); err != nil {
						return fmt.Errorf("reapply flag --%s: %w", name, err)
					}
				}
				if cmd.Flags().Changed("compress") {
					cfg.Compress = compress
				}
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runArchive(cmd.Context(), &cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar((*string)(&cfg.SrcType), "src-type", string(cfg.SrcType), "source type: fs or s3")
	flags.StringVar(&cfg.SrcPath, "src-path", "", "source directory (fs mode)")
	flags.StringVar(&cfg.SrcBucket, "src-bucket", "", "source bucket (s3 mode)")
	flags.StringVar(&cfg.SrcPrefix, "src-prefix", "", "source prefix (s3 mode)")
	flags.StringVar((*string)(&cfg.DstType), "dst-type", string(cfg.DstType), "destination type: fs or s3")
	flags.StringVar(&cfg.DstPath, "dst-path", "", "destination directory (fs mode)")
	flags.StringVar(&cfg.DstBucket, "dst-bucket", "", "destination bucket (s3 mode)")
	flags.StringVar(&cfg.DstPrefix, "dst-prefix", "", "destination prefix (s3 mode)")
	flags.StringVar(&cfg.InputFile, "input-file", "", "explicit list of paths/keys, one per line")
	flags.StringVar((*string)(&cfg.Combine), "combine", string(cfg.Combine), "batching policy: size or count")
	flags.Int64Var(&cfg.MaxTarSize, "max-tarfile-size", cfg.MaxTarSize, "batch size threshold in bytes (combine=size)")
	flags.IntVar(&cfg.MaxFileNumber, "max-file-number", cfg.MaxFileNumber, "batch count threshold (combine=count)")
	flags.IntVar(&cfg.MaxProcess, "max-process", cfg.MaxProcess, "number of concurrent archiver workers")
	flags.BoolVar(&compress, "compress", false, "gzip-compress archives")
	flags.StringVar(&cfg.ProfileName, "profile-name", "", "AWS shared config profile")
	flags.StringVar(&cfg.Region, "region", "", "AWS region")
	flags.StringVar((*string)(&cfg.LogLevel), "log-level", string(cfg.LogLevel), "DEBUG, INFO, WARNING, or ERROR")
	flags.StringVar(&flagConfigFile, "config-file", "", "YAML config file overlaid under these flags")
	flags.StringVar(&flagMetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")

	return cmd
}

var flagMetricsAddr string

func buildRestoreCommand() *cobra.Command {
	var archivePath, manifestPath string
	var start, stop int64
	var out string
	var useS3 bool
	var bucket, region string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a single member from a byte range of an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRestore(cmd.Context(), restoreArgs{
				archivePath:  archivePath,
				manifestPath: manifestPath,
				start:        start,
				stop:         stop,
				out:          out,
				useS3:        useS3,
				bucket:       bucket,
				region:       region,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&archivePath, "archive", "", "archive path (fs) or key (s3)")
	flags.StringVar(&manifestPath, "manifest", "", "manifest file to read the member's row from")
	flags.Int64Var(&start, "start", -1, "start_bytes; with --stop, selects the manifest row with this range")
	flags.Int64Var(&stop, "stop", -1, "stop_bytes; with --start, selects the manifest row with this range")
	flags.StringVar(&out, "out", "", "output file for the restored member; stdout if empty")
	flags.BoolVar(&useS3, "s3", false, "treat --archive as an object-store key")
	flags.StringVar(&bucket, "bucket", "", "bucket, required with --s3")
	flags.StringVar(&region, "region", "", "AWS region, required with --s3")

	return cmd
}

func buildLogger(level config.LogLevel) *logrus.Logger {
	logger := logrus.New()
	switch level {
	case config.LogDebug:
		logger.SetLevel(logrus.DebugLevel)
	case config.LogWarning:
		logger.SetLevel(logrus.WarnLevel)
	case config.LogError:
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger
}

func runArchive(ctx context.Context, cfg *config.Config) error {
	logger := buildLogger(cfg.LogLevel)

	var s3Client cloud.S3Client
	if cfg.SrcType == config.SourceObjectStore || cfg.DstType == config.DestObjectStore {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithSharedConfigProfile(cfg.ProfileName),
		)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		s3Client = s3.NewFromConfig(awsCfg)
	}

	reader, opener, err := buildSource(cfg, s3Client, logger)
	if err != nil {
		return err
	}
	snk, err := buildSink(cfg, s3Client)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if flagMetricsAddr != "" {
		reg := prometheus.NewRegistry()
		collector = metrics.NewCollector(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			_ = http.ListenAndServe(flagMetricsAddr, mux)
		}()
	}

	coord := coordinator.New(cfg, reader, opener, snk, logger, collector)

	logger.WithFields(logrus.Fields{
		"src": cfg.SrcPath + cfg.SrcBucket,
		"dst": cfg.DstPath + cfg.DstBucket,
	}).Info("starting archive run")

	report, err := coord.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Println(report.String())
	return nil
}

func buildSource(cfg *config.Config, s3Client cloud.S3Client, logger *logrus.Logger) (source.Reader, source.Opener, error) {
	if cfg.InputFile != "" {
		if cfg.SrcType == config.SourceObjectStore {
			return source.NewObjectStoreInputListReader(cfg.InputFile, s3Client, cfg.SrcBucket, logger),
				source.ObjectStoreOpener{Client: s3Client}, nil
		}
		return source.NewInputListReader(cfg.InputFile, logger), source.FilesystemOpener{}, nil
	}

	switch cfg.SrcType {
	case config.SourceFilesystem:
		return source.NewFilesystemReader(cfg.SrcPath, logger), source.FilesystemOpener{}, nil
	case config.SourceObjectStore:
		return source.NewObjectStoreReader(s3Client, cfg.SrcBucket, cfg.SrcPrefix), source.ObjectStoreOpener{Client: s3Client}, nil
	default:
		return nil, nil, fmt.Errorf("unknown src-type %q", cfg.SrcType)
	}
}

func buildSink(cfg *config.Config, s3Client cloud.S3Client) (sink.Sink, error) {
	switch cfg.DstType {
	case config.DestFilesystem:
		return sink.NewFilesystemSink(cfg.DstPath), nil
	case config.DestObjectStore:
		s := sink.NewObjectStoreSink(s3Client, cfg.DstBucket, cfg.DstPrefix)
		s.PartSize = cfg.PartSize
		s.MaxPartsInFlight = cfg.MaxPartsInFlight
		s.MaxRetries = cfg.MaxRetries
		return s, nil
	default:
		return nil, fmt.Errorf("unknown dst-type %q", cfg.DstType)
	}
}

type restoreArgs struct {
	archivePath  string
	manifestPath string
	start, stop  int64
	out          string
	useS3        bool
	bucket       string
	region       string
}

func runRestore(ctx context.Context, args restoreArgs) error {
	entries, err := loadManifestEntries(args.manifestPath)
	if err != nil {
		return err
	}

	entry, err := findManifestEntry(entries, args.archivePath, args.start, args.stop)
	if err != nil {
		return err
	}

	var opener restore.RangeOpener
	var loc source.Locator
	if args.useS3 {
		if args.bucket == "" || args.region == "" {
			return fmt.Errorf("--bucket and --region are required with --s3")
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(args.region))
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		opener = restore.ObjectStoreRangeOpener{Client: client}
		loc = source.Locator{Kind: source.LocatorObjectKey, Bucket: args.bucket, Key: args.archivePath}
	} else {
		opener = restore.FilesystemRangeOpener{}
		loc = source.Locator{Kind: source.LocatorFilesystem, Path: args.archivePath}
	}

	member, err := restore.Restore(ctx, opener, loc, entry)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	if args.out == "" {
		_, err := os.Stdout.Write(member.Content)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(args.out), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return os.WriteFile(args.out, member.Content, 0644)
}

func loadManifestEntries(path string) ([]manifest.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return manifest.ReadAll(f)
}

func findManifestEntry(entries []manifest.Entry, archiveName string, start, stop int64) (manifest.Entry, error) {
	for _, e := range entries {
		if start >= 0 && stop >= 0 {
			if e.StartOffset == start && e.EndOffset == stop {
				return e, nil
			}
			continue
		}
		if e.TarLocation == filepath.Base(archiveName) || archiveName == "" {
			return e, nil
		}
	}
	return manifest.Entry{}, fmt.Errorf("no manifest row matched archive=%q start=%d stop=%d", archiveName, start, stop)
}
