package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/vsalavatov/multifs/model/storage"
	"github.com/vsalavatov/multifs/model/vfs"
)

var flagLsVerbose bool
var flagLsHuman bool
var flagMkdirParents bool
var flagRmRecursive bool
var flagOverwrite bool
var flagImportDryRun bool
var flagImportMatch string

var lsCmd = &cobra.Command{
	Use:   "ls [-l] [-H] <backend>:<path>",
	Short: "Print the children of a folder",
	Long: `Print the children of the specified folder, folders first.

With -l, the kind and the size of each node are printed too, and -H prints the
sizes in a human readable format.`,
	Example: "$ multifs ls -l drive:/Documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return cmd.Usage()
		}
		loc, err := storage.ParseLocation(args[0])
		if err != nil {
			return err
		}
		return withStorage(cmd, func(ctx context.Context, s *storage.Storage) error {
			n, err := s.Resolve(ctx, loc)
			if err != nil {
				return err
			}
			nodes := []vfs.Node{n}
			if dir, ok := n.(vfs.Folder); ok {
				if nodes, err = dir.List(ctx); err != nil {
					return err
				}
			}
			return printNodes(ctx, cmd.OutOrStdout(), nodes, flagLsVerbose, flagLsHuman)
		})
	},
}

var treeCmd = &cobra.Command{
	Use:     "tree <backend>:<path>",
	Short:   "Print the tree structure of a folder",
	Example: "$ multifs tree disk:/photos",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return cmd.Usage()
		}
		loc, err := storage.ParseLocation(args[0])
		if err != nil {
			return err
		}
		return withStorage(cmd, func(ctx context.Context, s *storage.Storage) error {
			dir, err := s.ResolveFolder(ctx, loc)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err := fmt.Fprintln(w, loc); err != nil {
				return err
			}
			return printTree(ctx, w, dir, 1)
		})
	},
}

var catCmd = &cobra.Command{
	Use:     "cat <backend>:<path>",
	Short:   "Echo the file content in stdout",
	Example: "$ multifs cat db:/notes/todo.txt",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return cmd.Usage()
		}
		loc, err := storage.ParseLocation(args[0])
		if err != nil {
			return err
		}
		return withStorage(cmd, func(ctx context.Context, s *storage.Storage) error {
			f, err := s.ResolveFile(ctx, loc)
			if err != nil {
				return err
			}
			return catFile(ctx, cmd.OutOrStdout(), f)
		})
	},
}

var mkdirCmd = &cobra.Command{
	Use:     "mkdir [-p] <backend>:<path>",
	Short:   "Create a folder",
	Example: "$ multifs mkdir -p swift:/backups/2024",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return cmd.Usage()
		}
		loc, err := storage.ParseLocation(args[0])
		if err != nil {
			return err
		}
		if loc.Path.IsRoot() {
			return fmt.Errorf("mkdir: %s is the root folder", loc)
		}
		return withStorage(cmd, func(ctx context.Context, s *storage.Storage) error {
			if flagMkdirParents {
				_, err := mkdirAll(ctx, s, loc)
				return err
			}
			parent, err := s.ResolveFolder(ctx, storage.Location{Backend: loc.Backend, Path: loc.Path.Dir()})
			if err != nil {
				return err
			}
			_, err = parent.CreateFolder(ctx, loc.Path.Base())
			return err
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [-r] <backend>:<path>",
	Short: "Delete a file or a folder",
	Long: `Delete the specified file or folder. A folder must be empty, unless the -r
flag is given: then its content is deleted too.`,
	Example: "$ multifs rm -r mem:/tmp",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return cmd.Usage()
		}
		loc, err := storage.ParseLocation(args[0])
		if err != nil {
			return err
		}
		return withStorage(cmd, func(ctx context.Context, s *storage.Storage) error {
			n, err := s.Resolve(ctx, loc)
			if err != nil {
				return err
			}
			switch n := n.(type) {
			case vfs.Folder:
				return n.Remove(ctx, flagRmRecursive)
			case vfs.File:
				return n.Remove(ctx)
			}
			return fmt.Errorf("rm: unexpected node %s", loc)
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put [-f] <local-file> <backend>:<path>",
	Short: "Upload a local file",
	Long: `Upload a local file to the specified location. If the location is an
existing folder, the file keeps its local name inside it. An existing file is
only replaced with the -f flag.`,
	Example: "$ multifs put -f ./report.pdf drive:/Documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return cmd.Usage()
		}
		loc, err := storage.ParseLocation(args[1])
		if err != nil {
			return err
		}
		return withStorage(cmd, func(ctx context.Context, s *storage.Storage) error {
			parent, name, err := resolveTarget(ctx, s, loc, filepath.Base(args[0]))
			if err != nil {
				return err
			}
			return upload(ctx, args[0], parent, name, flagOverwrite)
		})
	},
}

var cpCmd = &cobra.Command{
	Use:   "cp [-f] <backend>:<from> <backend>:<to>",
	Short: "Copy a file, possibly to another backend",
	Long: `Copy a file. If the destination is an existing folder, the copy keeps the
name of the source inside it. An existing file is only replaced with the -f
flag. The source and the destination can be on different backends.`,
	Example: "$ multifs cp disk:/photos/cat.jpg drive:/Pictures",
	RunE: func(cmd *cobra.Command, args []string) error {
		return transferCmd(cmd, args, vfs.Copy)
	},
}

var mvCmd = &cobra.Command{
	Use:   "mv [-f] <backend>:<from> <backend>:<to>",
	Short: "Rename or move a file, possibly to another backend",
	Long: `Move a file. If the destination is an existing folder, the file keeps its
name inside it. An existing file is only replaced with the -f flag. When the
source and the destination are on different backends, the source is deleted
once its content has been written to the destination.`,
	Example: "$ multifs mv db:/draft.txt db:/final.txt",
	RunE: func(cmd *cobra.Command, args []string) error {
		return transferCmd(cmd, args, vfs.Move)
	},
}

var importCmd = &cobra.Command{
	Use:   "import [--match pattern] [--dry-run] <local-dir> <backend>:<path>",
	Short: "Import a local directory recursively",
	Long: `Import the content of a local directory in the specified folder. The
missing folders are created, and the existing files are only replaced with
the -f flag.`,
	Example: "$ multifs import --match '\\.jpg$' ~/Pictures swift:/pictures",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return cmd.Usage()
		}
		var match *regexp.Regexp
		if flagImportMatch != "" {
			var err error
			match, err = regexp.Compile(flagImportMatch)
			if err != nil {
				return err
			}
		}
		loc, err := storage.ParseLocation(args[1])
		if err != nil {
			return err
		}
		return withStorage(cmd, func(ctx context.Context, s *storage.Storage) error {
			i := &importer{
				w:       cmd.OutOrStdout(),
				s:       s,
				folders: make(map[string]vfs.Folder),
				dryRun:  flagImportDryRun,
			}
			return i.importDir(ctx, filepath.Clean(args[0]), loc, match)
		})
	},
}

type transferFunc func(ctx context.Context, file vfs.File, newParent vfs.Folder, newName string, overwrite bool) (vfs.File, error)

func transferCmd(cmd *cobra.Command, args []string, transfer transferFunc) error {
	if len(args) != 2 {
		return cmd.Usage()
	}
	from, err := storage.ParseLocation(args[0])
	if err != nil {
		return err
	}
	to, err := storage.ParseLocation(args[1])
	if err != nil {
		return err
	}
	return withStorage(cmd, func(ctx context.Context, s *storage.Storage) error {
		src, err := s.ResolveFile(ctx, from)
		if err != nil {
			return err
		}
		parent, name, err := resolveTarget(ctx, s, to, src.Name())
		if err != nil {
			return err
		}
		_, err = transfer(ctx, src, parent, name, flagOverwrite)
		return err
	})
}

// resolveTarget returns the folder and the name of the file designated by a
// destination: an existing folder keeps the default name, and else the last
// segment of the path is the new name in its parent folder.
func resolveTarget(ctx context.Context, s *storage.Storage, loc storage.Location, defaultName string) (vfs.Folder, string, error) {
	dir, err := s.ResolveFolder(ctx, loc)
	if err == nil {
		return dir, defaultName, nil
	}
	if !errors.Is(err, vfs.ErrFolderNotFound) || loc.Path.IsRoot() {
		return nil, "", err
	}
	parent, err := s.ResolveFolder(ctx, storage.Location{Backend: loc.Backend, Path: loc.Path.Dir()})
	if err != nil {
		return nil, "", err
	}
	return parent, loc.Path.Base(), nil
}

func mkdirAll(ctx context.Context, s *storage.Storage, loc storage.Location) (vfs.Folder, error) {
	fs, err := s.Open(ctx, loc.Backend)
	if err != nil {
		return nil, err
	}
	dir := fs.Root()
	for _, name := range loc.Path {
		next, err := dir.Folder(ctx, name)
		if errors.Is(err, vfs.ErrFolderNotFound) {
			next, err = dir.CreateFolder(ctx, name)
		}
		if err != nil {
			return nil, err
		}
		dir = next
	}
	return dir, nil
}

func upload(ctx context.Context, localname string, parent vfs.Folder, name string, overwrite bool) error {
	r, err := os.Open(localname)
	if err != nil {
		return err
	}
	defer r.Close()

	target, err := vfs.PrepareTarget(ctx, "put", parent, name, overwrite)
	if err != nil {
		return err
	}
	if stream, ok := target.(vfs.Streamer); ok {
		return stream.WriteFrom(ctx, r)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return target.Write(ctx, data)
}

func catFile(ctx context.Context, w io.Writer, f vfs.File) error {
	if stream, ok := f.(vfs.Streamer); ok {
		r, err := stream.Open(ctx)
		if err != nil {
			return err
		}
		defer r.Close()
		_, err = io.Copy(w, r)
		return err
	}
	data, err := f.Read(ctx)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func fileSize(ctx context.Context, f vfs.File) (int64, error) {
	if d, ok := f.(vfs.Described); ok {
		return d.KnownSize(), nil
	}
	if sizer, ok := f.(vfs.Sizer); ok {
		return sizer.Size(ctx)
	}
	data, err := f.Read(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// sortNodes puts the folders before the files, each sorted by name.
func sortNodes(nodes []vfs.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		_, di := nodes[i].(vfs.Folder)
		_, dj := nodes[j].(vfs.Folder)
		if di != dj {
			return di
		}
		return nodes[i].Name() < nodes[j].Name()
	})
}

func printNodes(ctx context.Context, w io.Writer, nodes []vfs.Node, verbose, human bool) error {
	type filePrint struct {
		typ  string
		name string
		size string
		mime string
	}

	sortNodes(nodes)

	var prints []*filePrint
	var maxnamelen int
	var maxsizelen int

	for _, n := range nodes {
		fp := &filePrint{typ: "d", name: n.Name()}
		if f, ok := n.(vfs.File); ok {
			fp.typ = "-"
			if d, ok := f.(vfs.Described); ok {
				fp.mime = d.MimeType()
			}
			if verbose {
				size, err := fileSize(ctx, f)
				if err != nil {
					return err
				}
				if human {
					fp.size = humanize.Bytes(uint64(size))
				} else {
					fp.size = humanize.Comma(size)
				}
			}
		}
		if len(fp.name) > maxnamelen {
			maxnamelen = len(fp.name)
		}
		if len(fp.size) > maxsizelen {
			maxsizelen = len(fp.size)
		}
		prints = append(prints, fp)
	}

	if !verbose {
		for _, fp := range prints {
			if _, err := fmt.Fprintln(w, fp.name); err != nil {
				return err
			}
		}
		return nil
	}

	smaxsizelen := strconv.Itoa(maxsizelen)
	smaxnamelen := strconv.Itoa(maxnamelen)

	for _, fp := range prints {
		line := fmt.Sprintf("%1s  %"+smaxsizelen+"s %-"+smaxnamelen+"s  %s", fp.typ, fp.size, fp.name, fp.mime)
		if _, err := fmt.Fprintln(w, strings.TrimRight(line, " ")); err != nil {
			return err
		}
	}
	return nil
}

func printTree(ctx context.Context, w io.Writer, dir vfs.Folder, level int) error {
	nodes, err := dir.List(ctx)
	if err != nil {
		return err
	}
	sortNodes(nodes)
	for _, n := range nodes {
		for i := 0; i < level; i++ {
			if i == level-1 {
				_, err = fmt.Fprintf(w, "└── ")
			} else {
				_, err = fmt.Fprintf(w, "|  ")
			}
			if err != nil {
				return err
			}
		}
		if _, err = fmt.Fprintln(w, n.Name()); err != nil {
			return err
		}
		if sub, ok := n.(vfs.Folder); ok {
			if err = printTree(ctx, w, sub, level+1); err != nil {
				return err
			}
		}
	}
	return nil
}

type importer struct {
	w       io.Writer
	s       *storage.Storage
	folders map[string]vfs.Folder
	dryRun  bool
}

func (i *importer) mkdir(ctx context.Context, loc storage.Location) (vfs.Folder, error) {
	key := loc.String()
	if dir, ok := i.folders[key]; ok {
		return dir, nil
	}
	dir, err := mkdirAll(ctx, i.s, loc)
	if err != nil {
		return nil, err
	}
	i.folders[key] = dir
	return dir, nil
}

func (i *importer) importDir(ctx context.Context, from string, to storage.Location, match *regexp.Regexp) error {
	infos, err := os.Stat(from)
	if err != nil {
		return err
	}
	if !infos.IsDir() {
		return fmt.Errorf("Not a directory: %s", from)
	}

	fmt.Fprintf(i.w, "Importing from %s to %s\n", from, to)

	return filepath.Walk(from, func(localname string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if localname == from {
			return nil
		}

		rel, err := filepath.Rel(from, localname)
		if err != nil {
			return err
		}
		dist := to
		for _, name := range strings.Split(filepath.ToSlash(rel), "/") {
			dist.Path = dist.Path.Join(name)
		}

		if f.IsDir() {
			fmt.Fprintf(i.w, "create dir %s\n", dist)
			if !i.dryRun {
				_, err = i.mkdir(ctx, dist)
			}
			return err
		}
		if !f.Mode().IsRegular() {
			return nil
		}
		if match != nil && !match.MatchString(localname) {
			return nil
		}

		fmt.Fprintf(i.w, "copying file %s to %s\n", localname, dist)
		if i.dryRun {
			return nil
		}
		parent, err := i.mkdir(ctx, storage.Location{Backend: dist.Backend, Path: dist.Path.Dir()})
		if err != nil {
			return err
		}
		return upload(ctx, localname, parent, dist.Path.Base(), flagOverwrite)
	})
}

func init() {
	lsCmd.Flags().BoolVarP(&flagLsVerbose, "long", "l", false, "List with the kind and the size of the nodes")
	lsCmd.Flags().BoolVarP(&flagLsHuman, "human-readable", "H", false, "Print the sizes in a human readable format")

	mkdirCmd.Flags().BoolVarP(&flagMkdirParents, "parents", "p", false, "Create the intermediary folders, no error if existing")

	rmCmd.Flags().BoolVarP(&flagRmRecursive, "recursive", "r", false, "Delete a folder and all its content")

	for _, c := range []*cobra.Command{putCmd, cpCmd, mvCmd, importCmd} {
		c.Flags().BoolVarP(&flagOverwrite, "force", "f", false, "Replace the existing files")
	}

	importCmd.Flags().BoolVar(&flagImportDryRun, "dry-run", false, "do not actually import the files")
	importCmd.Flags().StringVar(&flagImportMatch, "match", "", "pattern that the imported files must match")

	RootCmd.AddCommand(lsCmd)
	RootCmd.AddCommand(treeCmd)
	RootCmd.AddCommand(catCmd)
	RootCmd.AddCommand(mkdirCmd)
	RootCmd.AddCommand(rmCmd)
	RootCmd.AddCommand(putCmd)
	RootCmd.AddCommand(cpCmd)
	RootCmd.AddCommand(mvCmd)
	RootCmd.AddCommand(importCmd)
}
