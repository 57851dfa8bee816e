package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/trigg3rX/labelmarket-backend/internal/consensus"
	"github.com/trigg3rX/labelmarket-backend/internal/registry"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/types"
)

func TasksCommand() *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect labeling tasks",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tasks",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "requester", Usage: "only tasks created by this address"},
					&cli.BoolFlag{Name: "open", Usage: "only tasks still accepting submissions"},
				},
				Action: listTasks,
			},
			{
				Name:      "show",
				Usage:     "Show one task and its submissions",
				ArgsUsage: "<task-id>",
				Action:    showTask,
			},
		},
	}
}

func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Inspect user profiles",
		Subcommands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Show the profile and reputation of an address",
				ArgsUsage: "<address>",
				Action:    showProfile,
			},
		},
	}
}

func ReviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Run consensus on a task's submissions",
		Subcommands: []*cli.Command{
			{
				Name:  "finalize",
				Usage: "Accept and reject every pending submission, then finalize the task",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "task", Usage: "task id", Required: true},
					&cli.StringSliceFlag{Name: "accept", Usage: "submission ids to accept"},
					&cli.StringSliceFlag{Name: "reject", Usage: "submission ids to reject"},
				},
				Action: finalizeReview,
			},
		},
	}
}

// userError keeps the raw ledger text out of the primary message.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return cli.Exit(fmt.Sprintf("%s\n  detail: %s", pkgErrors.UserMessage(err), pkgErrors.Detail(err)), 1)
}

func listTasks(c *cli.Context) error {
	rt, err := setup(c, logging.CLIProcess)
	if err != nil {
		return err
	}
	defer rt.close()
	ctx := c.Context

	var listing *registry.Listing[*types.Task]
	switch {
	case c.String("requester") != "":
		listing, err = rt.service.TasksByRequester(ctx, c.String("requester"))
	case c.Bool("open"):
		listing, err = rt.service.OpenTasks(ctx)
	default:
		listing, err = rt.service.Tasks(ctx)
	}
	if err != nil {
		return userError(err)
	}
	printTasks(c.App.Writer, listing)
	return nil
}

func printTasks(out io.Writer, listing *registry.Listing[*types.Task]) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tLABELERS\tBOUNTY\tDEADLINE")
	for _, t := range listing.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%d\t%s\n",
			t.TaskID, t.Title, t.Status, t.CurrentLabelers, t.RequiredLabelers, t.Bounty,
			time.UnixMilli(t.Deadline).UTC().Format(time.RFC3339))
	}
	tw.Flush()
	if !listing.Complete {
		fmt.Fprintf(out, "warning: %d task(s) could not be read and are not shown\n", listing.Skipped)
	}
}

func parseID(raw, what string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(raw), "#"), 10, 64)
	if err != nil {
		return 0, cli.Exit(fmt.Sprintf("invalid %s %q", what, raw), 2)
	}
	return id, nil
}

func showTask(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: labelmarket tasks show <task-id>", 2)
	}
	taskID, err := parseID(c.Args().First(), "task id")
	if err != nil {
		return err
	}

	rt, err := setup(c, logging.CLIProcess)
	if err != nil {
		return err
	}
	defer rt.close()

	task, err := rt.service.Task(c.Context, taskID)
	if err != nil {
		return userError(err)
	}
	subs, err := rt.service.SubmissionsByTask(c.Context, taskID)
	if err != nil {
		return userError(err)
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Task #%d: %s\n", task.TaskID, task.Title)
	fmt.Fprintf(out, "  status:     %s\n", task.Status)
	fmt.Fprintf(out, "  requester:  %s\n", task.Requester)
	fmt.Fprintf(out, "  bounty:     %d (%d per labeler)\n", task.Bounty, task.PayoutPerLabeler())
	fmt.Fprintf(out, "  labelers:   %d/%d\n", task.CurrentLabelers, task.RequiredLabelers)
	fmt.Fprintf(out, "  deadline:   %s\n", time.UnixMilli(task.Deadline).UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "  dataset:    %s\n", task.DatasetURL)
	fmt.Fprintf(out, "Submissions (%d):\n", len(subs.Items))
	for _, s := range subs.Items {
		fmt.Fprintf(out, "  #%d  %-9s %s  %s\n", s.SubmissionID, s.Status, s.Labeler, s.ResultURL)
	}
	return nil
}

func showProfile(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: labelmarket profile show <address>", 2)
	}
	addr := c.Args().First()

	rt, err := setup(c, logging.CLIProcess)
	if err != nil {
		return err
	}
	defer rt.close()

	lookup, err := rt.service.Profile(c.Context, addr)
	if err != nil {
		return userError(err)
	}
	p := lookup.Profile
	out := c.App.Writer
	fmt.Fprintf(out, "%s (%s)\n", p.DisplayName, p.UserType)
	fmt.Fprintf(out, "  owner:        %s\n", p.Owner)
	fmt.Fprintf(out, "  tasks:        %d created\n", p.TasksCreated)
	fmt.Fprintf(out, "  submissions:  %d\n", p.SubmissionsCount)
	fmt.Fprintf(out, "  earned:       %d\n", p.TotalEarned)

	rep, err := rt.service.Reputation(c.Context, addr)
	switch {
	case err == nil:
		fmt.Fprintf(out, "  reputation:   %d/100 (%d accepted, %d rejected)\n", rep.UIScore(), rep.TotalAccepted, rep.TotalRejected)
	case pkgErrors.IsNotFound(err):
		fmt.Fprintln(out, "  reputation:   none yet")
	default:
		return userError(err)
	}
	return nil
}

func finalizeReview(c *cli.Context) error {
	accept, err := parseIDs(c.StringSlice("accept"))
	if err != nil {
		return err
	}
	reject, err := parseIDs(c.StringSlice("reject"))
	if err != nil {
		return err
	}

	rt, err := setup(c, logging.CLIProcess)
	if err != nil {
		return err
	}
	defer rt.close()

	round, err := rt.service.StartReview(c.Context, c.Uint64("task"))
	if err != nil {
		return userError(err)
	}
	defer rt.service.CloseReview(round.ID())

	for _, id := range accept {
		if err := round.ToggleAccept(id); err != nil {
			return userError(err)
		}
	}
	for _, id := range reject {
		if err := round.ToggleReject(id); err != nil {
			return userError(err)
		}
	}

	_, err = rt.service.FinalizeReview(c.Context, round.ID())
	return reportRound(c.App.Writer, round, err)
}

func parseIDs(raw []string) ([]uint64, error) {
	ids := make([]uint64, 0, len(raw))
	for _, r := range raw {
		id, err := parseID(r, "submission id")
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func reportRound(out io.Writer, round *consensus.Round, err error) error {
	summary := round.Summary()
	switch {
	case err == nil:
		fmt.Fprintf(out, "Done: task #%d finalized (%s), %d accepted, %d rejected, %d paid out\n",
			summary.TaskID, summary.FinalizeDigest, len(summary.Accepted), len(summary.Rejected), summary.TotalPayout)
		return nil
	case pkgErrors.Classify(err) == pkgErrors.CategoryPartial:
		fmt.Fprintf(out, "Warning: task #%d finalized (%s) but %d status update(s) failed: %v\n",
			summary.TaskID, summary.FinalizeDigest, len(summary.FailedUpdates), summary.FailedUpdates)
		fmt.Fprintln(out, pkgErrors.UserMessage(err))
		return cli.Exit("", 3)
	}
	return userError(err)
}
