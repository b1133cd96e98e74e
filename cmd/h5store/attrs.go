package main

import (
	"fmt"
	"io"
	"path"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-h5store/hdf5"
)

func newAttrsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attrs <file> [link]",
		Short: "List attributes and their values",
		Long:  "List the attributes of link, or of every group and entry when no link is given.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hdf5.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			link := ""
			if len(args) == 2 {
				link = path.Clean("/" + args[1])
			}
			return listAttrs(cmd.OutOrStdout(), f, link)
		},
	}
}

func listAttrs(w io.Writer, f *hdf5.File, link string) error {
	return f.WalkAttrs(func(info hdf5.AttrInfo) error {
		if link != "" && info.ObjectPath != link {
			return nil
		}
		if info.Err != nil {
			fmt.Fprintf(w, "%s: %v\n", info.Path, info.Err)
			return nil
		}
		fmt.Fprintf(w, "%s = %v\n", info.Path, info.Value)
		return nil
	})
}
