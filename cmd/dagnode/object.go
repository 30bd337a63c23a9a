package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/dagnode/model"
	"xdao.co/dagnode/node"
	"xdao.co/dagnode/storage/registry"
)

func (e *env) objectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "object", Short: "Read, write and patch dag-pb nodes"}
	patch := &cobra.Command{Use: "patch", Short: "Derive a new dag-pb node from an existing one"}
	patch.AddCommand(e.objectPatchCmd("append-data", "Append data to a node's Data field", true),
		e.objectPatchCmd("set-data", "Replace a node's Data field", false))
	cmd.AddCommand(e.objectGetCmd(), e.objectPutCmd(), patch)
	return cmd
}

func (e *env) objectGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <cid>",
		Short: "Print a dag-pb node as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			pb, _, err := n.Objects.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.printJSON(model.FromPBNode(pb))
		}),
	}
}

func (e *env) objectPutCmd() *cobra.Command {
	var v0 bool
	cmd := &cobra.Command{
		Use:   "put [file]",
		Short: "Store a dag-pb node given as JSON {Links, Data}",
		Args:  cobra.MaximumNArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			raw, err := e.readInput(args)
			if err != nil {
				return err
			}
			var obj model.Object
			if err := json.Unmarshal(raw, &obj); err != nil {
				return model.NewError(model.ErrInvalidRequest, err.Error())
			}
			pb, err := obj.PBNode()
			if err != nil {
				return err
			}
			id, err := n.Objects.Put(cmd.Context(), pb, v0)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, id)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&v0, "v0", false, "return a CIDv0")
	return cmd
}

func (e *env) objectPatchCmd(use, short string, appendData bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <cid> [file]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			data, err := e.readInput(args[1:])
			if err != nil {
				return err
			}
			patch := n.Objects.SetData
			if appendData {
				patch = n.Objects.AppendData
			}
			id, err := patch(cmd.Context(), args[0], data)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, id)
			return nil
		}),
	}
}
