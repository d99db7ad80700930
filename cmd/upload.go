package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/okapi-harvester/internal/clock/system"
	"github.com/JakeFAU/okapi-harvester/internal/publisher"
	"github.com/JakeFAU/okapi-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/okapi-harvester/internal/storage/gcs"
)

// newUploadCmd creates the 'upload' subcommand, which mirrors the output
// directory to Cloud Storage.
func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Mirror downloaded media and metadata to Cloud Storage",
		Long: `Uploads media files and metadata documents that are not yet present in
the bucket, then rewrites the remote manifest. Credentials come from
--credentials, HARVEST_UPLOAD_CREDENTIALS_JSON or GOOGLE_SERVICE_ACCOUNT.`,
		Args: cobra.NoArgs,
		RunE: runUploadCommand,
	}
	f := cmd.Flags()
	f.String("out", "data/raw/okapi", "local directory to mirror")
	f.String("bucket", "", "destination bucket")
	f.String("prefix", "lingala-stt", "object name prefix")
	f.String("credentials", "", "service account key file")
	f.String("endpoint", "", "storage emulator endpoint (disables auth)")
	f.Int("concurrency", 4, "parallel uploads")
	return cmd
}

func runUploadCommand(cmd *cobra.Command, _ []string) error {
	s, err := resolveSession(cmd.Context())
	if err != nil {
		return err
	}
	if err := s.cfg.ValidateUpload(); err != nil {
		return err
	}
	ctx := cmd.Context()
	u := s.cfg.Upload

	a, err := newApp(s.cfg, s.logger)
	if err != nil {
		return err
	}
	client, err := gcs.NewClient(ctx, gcs.ClientConfig{
		CredentialsFile: u.CredentialsFile,
		CredentialsJSON: u.CredentialsJSON,
		Endpoint:        u.Endpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			s.logger.Warn("Failed to close storage client", zap.Error(cerr))
		}
	}()

	var pub publisher.Publisher
	if u.PubSubTopic != "" {
		var opts []option.ClientOption
		switch {
		case u.CredentialsJSON != "":
			opts = append(opts, option.WithCredentialsJSON([]byte(u.CredentialsJSON)))
		case u.CredentialsFile != "":
			opts = append(opts, option.WithCredentialsFile(u.CredentialsFile))
		}
		p, err := pubsub.New(ctx, u.PubSubProject, u.PubSubTopic, opts...)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := p.Close(); cerr != nil {
				s.logger.Warn("Failed to close publisher", zap.Error(cerr))
			}
		}()
		pub = p
	}

	mirror, err := gcs.New(client, a.Store(), gcs.Config{
		Bucket:          u.Bucket,
		Prefix:          u.Prefix,
		Concurrency:     u.Concurrency,
		MediaExtensions: s.cfg.Source.MediaExtensions,
		ChunkSize:       u.ChunkSize,
	}, pub, system.New(), s.logger.Named("upload"))
	if err != nil {
		return err
	}

	summary, syncErr := mirror.Sync(ctx)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("print summary: %w", err)
	}
	return syncErr
}
