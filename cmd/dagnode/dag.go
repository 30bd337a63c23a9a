package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"xdao.co/dagnode/node"
	"xdao.co/dagnode/resolver"
	"xdao.co/dagnode/storage/registry"
)

func (e *env) dagCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dag", Short: "Walk and resolve DAGs across codecs"}
	cmd.AddCommand(e.dagTreeCmd(), e.dagResolveCmd())
	return cmd
}

func (e *env) dagTreeCmd() *cobra.Command {
	var opts resolver.TreeOptions
	cmd := &cobra.Command{
		Use:   "tree <cid[/path]> [sub-path]",
		Short: "List the paths inside a node, optionally following links",
		Args:  cobra.RangeArgs(1, 2),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			sub := ""
			if len(args) == 2 {
				sub = args[1]
			}
			if e.jsonOut {
				paths, err := n.Resolver.Tree(cmd.Context(), args[0], sub, opts)
				if err != nil {
					return err
				}
				return e.printJSON(paths)
			}
			return n.Resolver.Walk(cmd.Context(), args[0], sub, opts, func(p string) error {
				_, err := fmt.Fprintln(e.out, p)
				return err
			})
		}),
	}
	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "descend into linked nodes")
	return cmd
}

func (e *env) dagResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <cid/path>",
		Short: "Resolve a path to the last block it crosses and the remainder inside it",
		Args:  cobra.ExactArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			id, rest, err := n.Resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.printJSON(struct {
					Cid     string `json:"cid"`
					RemPath string `json:"remPath"`
				}{id.String(), strings.Join(rest, "/")})
			}
			if len(rest) == 0 {
				fmt.Fprintln(e.out, id)
				return nil
			}
			fmt.Fprintf(e.out, "%s/%s\n", id, strings.Join(rest, "/"))
			return nil
		}),
	}
}

func (e *env) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <cid[/path]>",
		Short: "List a unixfs directory",
		Args:  cobra.ExactArgs(1),
		RunE: e.withNode(registry.UsageCLI, func(cmd *cobra.Command, n *node.Node, args []string) error {
			entries, err := n.Resolver.Ls(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if e.jsonOut {
				return e.printJSON(entries)
			}
			tw := tabwriter.NewWriter(e.out, 0, 4, 1, ' ', 0)
			for _, ent := range entries {
				name := ent.Name
				if ent.Type == resolver.TypeDir {
					name += "/"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", ent.Hash, ent.Size, name)
			}
			return tw.Flush()
		}),
	}
}
