package cmd

import (
	"context"
	"fmt"
	"time"

	"Tunedrop/logger"
	"Tunedrop/storage"

	"github.com/spf13/cobra"
)

var storageList bool

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Create the audio and cover buckets",
	Long:  `Create the audio and cover buckets if they are missing, and optionally print how many objects each one holds.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		store, err := storage.NewObjectStore(storage.Options{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Region:    cfg.StorageRegion,
			UseSSL:    cfg.StorageUseSSL,
		})
		if err != nil {
			logger.Fatal("[Storage] failed to create client", logger.ErrorField(err))
		}

		if err := store.EnsureBuckets(ctx, cfg.AudioBucket, cfg.CoverBucket); err != nil {
			logger.Fatal("[Storage] failed to ensure buckets", logger.ErrorField(err))
		}
		fmt.Printf("Buckets ready: %s, %s\n", cfg.AudioBucket, cfg.CoverBucket)

		if !storageList {
			return
		}
		for _, bucket := range []string{cfg.AudioBucket, cfg.CoverBucket} {
			stats, err := store.Stats(ctx, bucket)
			if err != nil {
				logger.Fatal("[Storage] failed to read bucket stats", logger.String("bucket", bucket), logger.ErrorField(err))
			}
			fmt.Printf("%-24s %8d objects %12d bytes", stats.Bucket, stats.TotalObjects, stats.TotalSize)
			if !stats.LastModified.IsZero() {
				fmt.Printf("  last upload %s", stats.LastModified.Format(time.RFC3339))
			}
			fmt.Println()
		}
	},
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.Flags().BoolVarP(&storageList, "list", "l", false, "print object counts and sizes per bucket")

	storageCmd.Example = `  # create missing buckets
  tunedrop storage

  # create missing buckets and print their contents summary
  tunedrop storage --list`
}
