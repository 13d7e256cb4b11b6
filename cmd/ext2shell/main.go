// Command ext2shell is a small interactive REPL over an ext2 disk image:
// ls, cd, pwd, cat, mkdir, dumpe2fs, and exit.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/dargueta/ext2fs/ext2"
)

func main() {
	app := &cli.App{
		Name:      "ext2shell",
		Usage:     "Browse an ext2 disk image interactively",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Usage: "enable debug logging"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		cli.ShowAppHelp(ctx)
		os.Exit(1)
	}

	log := logrus.New()
	if ctx.Bool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	imagePath := ctx.Args().Get(0)
	f, err := os.OpenFile(imagePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	facade, err := ext2.Open(f, log)
	if err != nil {
		return fmt.Errorf("opening ext2 image: %w", err)
	}
	defer facade.Close()

	nav, err := facade.GetNavigator()
	if err != nil {
		return fmt.Errorf("building navigator: %w", err)
	}

	return repl(facade, nav)
}

type groupRow struct {
	Group       int    `csv:"group"`
	BlockBitmap uint32 `csv:"block_bitmap"`
	InodeBitmap uint32 `csv:"inode_bitmap"`
	InodeTable  uint32 `csv:"inode_table"`
	FreeBlocks  uint16 `csv:"free_blocks"`
	FreeInodes  uint16 `csv:"free_inodes"`
	Directories uint16 `csv:"directories"`
}

func repl(facade *ext2.Facade, nav *ext2.Navigator) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("%s> ", nav.PathString())
		if !scanner.Scan() {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		switch cmd {
		case "exit":
			return nil
		case "pwd":
			fmt.Println(nav.PathString())
		case "cd":
			if len(args) != 1 {
				fmt.Println("usage: cd <path>")
				continue
			}
			clone := nav.Clone()
			if err := clone.Navigate(args[0]); err != nil {
				fmt.Println("cd:", err)
				continue
			}
			nav = clone
		case "ls":
			path := "."
			if len(args) == 1 {
				path = args[0]
			}
			clone := nav.Clone()
			if path != "." {
				if err := clone.Navigate(path); err != nil {
					fmt.Println("ls:", err)
					continue
				}
			}
			for name := range clone.CurrentDirectory().Entries {
				fmt.Println(name)
			}
		case "cat":
			if len(args) != 1 {
				fmt.Println("usage: cat <file>")
				continue
			}
			entry, err := facade.GetEntry(resolvePath(nav, args[0]))
			if err != nil {
				fmt.Println("cat:", err)
				continue
			}
			if !entry.IsFile() {
				fmt.Println("cat: not a regular file")
				continue
			}
			blocks, err := facade.Graph.Walk(entry.Raw)
			if err != nil {
				fmt.Println("cat:", err)
				continue
			}
			remaining := entry.Raw.Size()
			for _, blk := range blocks {
				buf := make([]byte, facade.Config.BlockSize)
				if err := facade.Dev.ReadBlock(blk, buf, 0, 0); err != nil {
					fmt.Println("cat:", err)
					break
				}
				n := min(remaining, uint64(len(buf)))
				os.Stdout.Write(buf[:n])
				remaining -= n
			}
		case "mkdir":
			if len(args) != 1 {
				fmt.Println("usage: mkdir <path>")
				continue
			}
			parent, name := splitShellPath(resolvePath(nav, args[0]))
			if _, err := facade.Mkdir(parent, name); err != nil {
				fmt.Println("mkdir:", err)
				continue
			}
		case "dumpe2fs":
			out, err := facade.Dumpe2fs()
			if err != nil {
				fmt.Println("dumpe2fs:", err)
				continue
			}
			fmt.Print(out)
		case "dumpe2fs-csv":
			if err := writeGroupsCSV(facade); err != nil {
				fmt.Println("dumpe2fs-csv:", err)
			}
		case "gdt":
			for i, gd := range facade.GDT {
				fmt.Printf("group %d: blockBitmap=%d inodeBitmap=%d inodeTable=%d free=%d/%d dirs=%d\n",
					i, gd.BlockBitmapBlock, gd.InodeBitmapBlock, gd.InodeTableBlock,
					gd.FreeBlocksCount, gd.FreeInodesCount, gd.DirectoriesCount)
			}
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
}

// resolvePath turns a shell argument (possibly relative) into an absolute
// path the Façade's one-shot GetEntry can resolve.
func resolvePath(nav *ext2.Navigator, arg string) string {
	if strings.HasPrefix(arg, "/") {
		return arg
	}
	base := nav.PathString()
	if base == "/" {
		return "/" + arg
	}
	return base + "/" + arg
}

// splitShellPath splits an absolute path into its parent directory and
// final component, for commands like mkdir that name a not-yet-existing
// entry.
func splitShellPath(absolutePath string) (parent, name string) {
	idx := strings.LastIndex(absolutePath, "/")
	parent, name = absolutePath[:idx], absolutePath[idx+1:]
	if parent == "" {
		parent = "/"
	}
	return parent, name
}

// writeGroupsCSV renders the group descriptor table as CSV via gocsv, a
// debug aid beyond the original shell's command set.
func writeGroupsCSV(facade *ext2.Facade) error {
	rows := make([]groupRow, len(facade.GDT))
	for i, gd := range facade.GDT {
		rows[i] = groupRow{
			Group: i, BlockBitmap: gd.BlockBitmapBlock, InodeBitmap: gd.InodeBitmapBlock,
			InodeTable: gd.InodeTableBlock, FreeBlocks: gd.FreeBlocksCount,
			FreeInodes: gd.FreeInodesCount, Directories: gd.DirectoriesCount,
		}
	}

	out, err := gocsv.MarshalString(&rows)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
