package cmd

import (
	"fmt"
	"strings"

	"github.com/jobify-ml/skillner/checkpoint"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect CHECKPOINT",
	Short: "List the tensors of a safetensors checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return runInspect(args[0])
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(path string) error {
	ckpt, err := checkpoint.Open(path)
	if err != nil {
		return err
	}
	for _, name := range ckpt.ListTensors() {
		meta := ckpt.Tensors[name]
		dims := make([]string, len(meta.Shape))
		for i, d := range meta.Shape {
			dims[i] = fmt.Sprint(d)
		}
		fmt.Printf("%s\t%s\t[%s]\n", name, meta.Dtype, strings.Join(dims, ", "))
	}
	return nil
}
