package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-h5store/hdf5"
)

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <file>",
		Short: "List groups and entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hdf5.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return list(cmd.OutOrStdout(), f.Root())
		},
	}
}

func list(w io.Writer, root *hdf5.Group) error {
	return hdf5.Walk(root, func(path string, obj interface{}, err error) error {
		depth := strings.Count(strings.Trim(path, "/"), "/")
		if path != "/" {
			depth++
		}
		indent := strings.Repeat("  ", depth)
		if err != nil {
			fmt.Fprintf(w, "%s%s: %v\n", indent, path, err)
			return nil
		}
		switch o := obj.(type) {
		case *hdf5.Group:
			fmt.Fprintf(w, "%s%s/\n", indent, strings.TrimSuffix(path, "/"))
		case *hdf5.Dataset:
			shape := "scalar"
			if !o.IsScalar() {
				shape = fmt.Sprint(o.Shape())
			}
			fmt.Fprintf(w, "%s%s %s %d-byte %s\n", indent, path, shape, o.DtypeSize(), o.LayoutName())
		}
		return nil
	})
}
