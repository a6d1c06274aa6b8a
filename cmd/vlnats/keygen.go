package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/VolantMQ/vlnats/keystore"
)

type keygenOptions struct {
	out   string
	force bool
}

// KeygenCommand generates server identity seed for keystore.file
func KeygenCommand() *cobra.Command {
	var opts keygenOptions

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate server identity seed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := keystore.GenerateSeed()
			if err != nil {
				return err
			}

			if opts.out == "" {
				_, err = cmd.OutOrStdout().Write(append(seed, '\n'))
				return err
			}

			flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if opts.force {
				flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}

			f, err := os.OpenFile(opts.out, flags, 0600)
			if err != nil {
				return errors.Wrap(err, "keygen")
			}

			if _, err = f.Write(seed); err != nil {
				_ = f.Close()
				return errors.Wrap(err, "keygen")
			}

			if err = f.Close(); err != nil {
				return errors.Wrap(err, "keygen")
			}

			key, err := keystore.Parse(seed)
			if err != nil {
				return err
			}

			id, err := keystore.ServerID(key)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "seed written to %s\nserver id: %s\n", opts.out, id)

			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "file to write seed to, stdout if empty")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite existing file")

	return cmd
}
