// Command fixturetool compresses and decompresses ext2 test fixture images
// using the RLE8+gzip scheme that internal/testutil's LoadImage decodes.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/dargueta/ext2fs/utilities/compression"
)

func main() {
	app := &cli.App{
		Name:  "fixturetool",
		Usage: "Compress or decompress ext2 image fixtures",
		Commands: []*cli.Command{
			{
				Name:      "compress",
				Usage:     "Compress a raw ext2 image for storage as a test fixture",
				ArgsUsage: "INPUT OUTPUT",
				Action:    compressAction,
			},
			{
				Name:      "decompress",
				Usage:     "Decompress a test fixture back to a raw ext2 image",
				ArgsUsage: "INPUT OUTPUT",
				Action:    decompressAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func compressAction(ctx *cli.Context) error {
	in, out, err := openPair(ctx)
	if err != nil {
		return err
	}
	defer in.Close()
	defer out.Close()

	n, err := compression.CompressImage(in, out)
	if err != nil {
		return fmt.Errorf("compressing image: %w", err)
	}
	fmt.Printf("Compressed fixture to %d bytes.\n", n)
	return nil
}

func decompressAction(ctx *cli.Context) error {
	in, out, err := openPair(ctx)
	if err != nil {
		return err
	}
	defer in.Close()
	defer out.Close()

	n, err := compression.DecompressImage(in, out)
	if err != nil {
		return fmt.Errorf("decompressing fixture: %w", err)
	}
	fmt.Printf("Decompressed fixture to %d bytes.\n", n)
	return nil
}

func openPair(ctx *cli.Context) (*os.File, *os.File, error) {
	if ctx.Args().Len() != 2 {
		return nil, nil, fmt.Errorf("expected INPUT and OUTPUT arguments")
	}

	in, err := os.Open(ctx.Args().Get(0))
	if err != nil {
		return nil, nil, fmt.Errorf("opening input: %w", err)
	}

	out, err := os.Create(ctx.Args().Get(1))
	if err != nil {
		in.Close()
		return nil, nil, fmt.Errorf("opening output: %w", err)
	}

	return in, out, nil
}
