package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newDeleteCmd(a *app) *cobra.Command {
	var (
		productID int64
		filename  string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one image of a product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.images.Delete(cmd.Context(), productID, filename); err != nil {
				return fmt.Errorf("deleting %s: %w", filename, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from product %d\n", filename, productID)
			a.warnLocalCache(cmd.OutOrStdout(), productID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&productID, "product-id", 0, "product the image belongs to")
	cmd.Flags().StringVar(&filename, "filename", "", "file name within the product's folder")
	_ = cmd.MarkFlagRequired("product-id")
	_ = cmd.MarkFlagRequired("filename")
	return cmd
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		productID    int64
		forceRefresh bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print a product's image descriptors as JSON",
		Long: `Resolve a product's images exactly as the API does, using the cache
unless --force-refresh is given, and print the descriptors as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descs := a.images.Resolve(cmd.Context(), productID, forceRefresh)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(descs)
		},
	}

	cmd.Flags().Int64Var(&productID, "product-id", 0, "product to resolve")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "bypass the cache and re-list storage")
	_ = cmd.MarkFlagRequired("product-id")
	return cmd
}

func newClearCacheCmd(a *app) *cobra.Command {
	var productID int64

	cmd := &cobra.Command{
		Use:   "clear-cache",
		Short: "Invalidate cached image sets",
		Long: `Invalidate the cached image set of every product in the catalog, or of a
single product with --product-id.

The cache must be shared with the API server (CACHE_DRIVER=redis); with the
in-process memory cache there is nothing here to clear.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.localCache() {
				return errors.New("clear-cache needs a cache shared with the server, " +
					"but CACHE_DRIVER=memory is private to imagectl; set CACHE_DRIVER=redis")
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			ids := []int64{productID}
			if productID == 0 {
				var err error
				if ids, err = a.products.IDs(ctx); err != nil {
					return err
				}
			}

			var failed int
			for _, id := range ids {
				if err := a.images.Invalidate(ctx, id); err != nil {
					failed++
					a.logger.Error("invalidating image cache", "product_id", id, "error", err)
				}
			}

			fmt.Fprintf(out, "Cleared image cache for %d product(s)\n", len(ids)-failed)
			if failed > 0 {
				return fmt.Errorf("%d of %d invalidations failed", failed, len(ids))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&productID, "product-id", 0, "only clear this product (default: all products)")
	return cmd
}
