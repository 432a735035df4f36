package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Nyukimin/patchgate/pkg/adminclient"
)

// readPatch reads a patch from a file, or from in when path is "-".
func readPatch(in io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read patch: %w", err)
	}
	return string(data), nil
}

func runPropose(ctx context.Context, c *adminclient.Client, in io.Reader, out io.Writer, path string) error {
	patchText, err := readPatch(in, path)
	if err != nil {
		return err
	}
	res, err := c.Propose(ctx, patchText)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "id:    %s\nhash:  %s\nfiles: %s\n", res.ID, res.Hash, strings.Join(res.Files, ", "))
	return nil
}

func runApply(ctx context.Context, c *adminclient.Client, out io.Writer, id, hash string) error {
	diff, err := c.Apply(ctx, id, hash)
	if err != nil {
		return err
	}
	fmt.Fprint(out, diff)
	return nil
}

func runCommit(ctx context.Context, c *adminclient.Client, out io.Writer, message string) error {
	if err := c.Commit(ctx, message); err != nil {
		return err
	}
	fmt.Fprintln(out, "committed")
	return nil
}

func runPush(ctx context.Context, c *adminclient.Client, out io.Writer) error {
	if err := c.Push(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "pushed")
	return nil
}

func runLand(ctx context.Context, c *adminclient.Client, in io.Reader, out io.Writer, path, message string) error {
	patchText, err := readPatch(in, path)
	if err != nil {
		return err
	}
	res, err := c.Land(ctx, patchText, message)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "landed %s (%s)\n", res.ID, strings.Join(res.Files, ", "))
	return nil
}

func runAuto(ctx context.Context, c *adminclient.Client, out io.Writer, instruction string) error {
	res, err := c.Auto(ctx, instruction)
	if err != nil {
		return err
	}
	fmt.Fprint(out, res.Patch)
	fmt.Fprintf(out, "landed %s (%s)\n", res.ID, strings.Join(res.Files, ", "))
	return nil
}

func runList(ctx context.Context, c *adminclient.Client, out io.Writer) error {
	list, err := c.Proposals(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No proposals.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tHASH\tFILES")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Created().UTC().Format(time.RFC3339), shortHash(p.Hash), strings.Join(p.Files, ", "))
	}
	return tw.Flush()
}

func runShow(ctx context.Context, c *adminclient.Client, out io.Writer, id string) error {
	p, err := c.Proposal(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "# id:   %s\n# hash: %s\n", p.ID, p.Hash)
	fmt.Fprint(out, p.Patch)
	return nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
