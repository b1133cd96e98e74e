package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/go-h5store/hdf5"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <file> <entry>",
		Short: "Print the values of an entry",
		Long:  "Print the values of an entry, one per line in row-major order. Numbers are printed as float64.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hdf5.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ds, err := f.OpenDataset(args[1])
			if err != nil {
				return err
			}
			return printValues(cmd.OutOrStdout(), ds)
		},
	}
}

func printValues(w io.Writer, ds *hdf5.Dataset) error {
	switch ds.DtypeClass() {
	case message.ClassString, message.ClassVarLen:
		vals, err := ds.ReadString()
		if err != nil {
			return err
		}
		for _, v := range vals {
			fmt.Fprintln(w, v)
		}
	case message.ClassFixedPoint, message.ClassFloatPoint:
		vals, err := ds.ReadFloat64()
		if err != nil {
			return err
		}
		for _, v := range vals {
			fmt.Fprintln(w, v)
		}
	default:
		var vals []complex128
		if err := ds.Read(&vals); err != nil {
			return fmt.Errorf("cannot print class %d values: %w", ds.DtypeClass(), err)
		}
		for _, v := range vals {
			fmt.Fprintln(w, v)
		}
	}
	return nil
}
