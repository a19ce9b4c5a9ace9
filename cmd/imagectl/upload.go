package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgecommerce/catalog/internal/catalog"
)

// imageExtensions are matched in lower and upper case.
var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

func newUploadCmd(a *app) *cobra.Command {
	var (
		productID int64
		imageDir  string
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload every image in a directory for one product",
		Long: `Upload every .jpg, .jpeg, .png, .gif and .webp file found directly in
--image-dir to the product's folder in object storage, then invalidate the
product's cached image set.

The product must exist in the catalog. Files that fail to upload are reported
and the command exits non-zero once the rest have been tried.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), a, cmd.OutOrStdout(), productID, imageDir)
		},
	}

	cmd.Flags().Int64Var(&productID, "product-id", 0, "product to upload images for")
	cmd.Flags().StringVar(&imageDir, "image-dir", "", "directory containing the images")
	_ = cmd.MarkFlagRequired("product-id")
	_ = cmd.MarkFlagRequired("image-dir")
	return cmd
}

func runUpload(ctx context.Context, a *app, out io.Writer, productID int64, imageDir string) error {
	info, err := os.Stat(imageDir)
	if err != nil {
		return fmt.Errorf("reading image directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", imageDir)
	}

	product, err := a.products.Get(ctx, productID)
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("product %d does not exist", productID)
	}
	if err != nil {
		return err
	}

	files, err := findImages(imageDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(out, "No images found in %s\n", imageDir)
		return nil
	}

	fmt.Fprintf(out, "Uploading %d image(s) for product %d (%s)\n", len(files), product.ID, product.Name)

	var uploaded, failed int
	for _, path := range files {
		name := filepath.Base(path)
		if err := uploadFile(ctx, a.images, productID, path); err != nil {
			failed++
			fmt.Fprintf(out, "  FAIL %s: %v\n", name, err)
			a.logger.Error("uploading image", "product_id", productID, "file", path, "error", err)
			continue
		}
		uploaded++
		fmt.Fprintf(out, "  OK   %s\n", name)
	}

	fmt.Fprintf(out, "Uploaded %d image(s), %d failed\n", uploaded, failed)
	if uploaded > 0 {
		a.warnLocalCache(out, productID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(files))
	}
	return nil
}

func uploadFile(ctx context.Context, imgs imageManager, productID int64, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	return imgs.Upload(ctx, productID, filepath.Base(path), f, info.Size(), contentType(path))
}

// findImages returns the image files directly inside dir, sorted by name.
func findImages(dir string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, ext := range imageExtensions {
		for _, pattern := range []string{"*." + ext, "*." + strings.ToUpper(ext)} {
			matches, err := filepath.Glob(filepath.Join(dir, pattern))
			if err != nil {
				return nil, fmt.Errorf("matching %s: %w", pattern, err)
			}
			for _, m := range matches {
				if !seen[m] {
					seen[m] = true
					files = append(files, m)
				}
			}
		}
	}
	slices.Sort(files)
	return files, nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
