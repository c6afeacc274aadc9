package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"netrunner/internal/actions"
	"netrunner/internal/config"
	"netrunner/internal/deployment"
	"netrunner/internal/history"
	"netrunner/internal/inputs"
	"netrunner/internal/notify"
	"netrunner/internal/security"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"
)

const cancelTimeout = 15 * time.Second

// workflowFlags are shared by the workflow commands.
type workflowFlags struct {
	// workflow names the dispatch-only workflow a command drives.
	workflow string

	inputsFile        string
	ref               string
	wait              bool
	force             bool
	post              bool
	cancelOnInterrupt bool
	markDestroyed     bool
}

var (
	launchFlags  workflowFlags
	destroyFlags workflowFlags
	upscaleFlags workflowFlags
)

var launchCmd = &cobra.Command{
	Use:     "launch-network",
	Short:   "Launch a network and record the deployment",
	GroupID: "workflows",
	Long: `Dispatch the launch-network workflow with the inputs from a YAML file, find
the run it created and record it as a deployment.

With --wait the command follows the run to completion. A failed run is still
recorded so it can be inspected and later destroyed.`,
	Example: `  netrunner launch-network -i dev-01.yml --wait --post`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, deployment.KindLaunch, &launchFlags)
	},
}

var destroyCmd = &cobra.Command{
	Use:     "destroy-network",
	Short:   "Destroy a network",
	GroupID: "workflows",
	Long: `Dispatch the destroy-network workflow. When the run succeeds the active
deployment with that name is marked destroyed and the name can be reused.`,
	Example: `  netrunner destroy-network -i dev-01.yml --wait`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, deployment.KindDestroy, &destroyFlags)
	},
}

var upscaleCmd = &cobra.Command{
	Use:     "upscale-network",
	Short:   "Change the size of a running network",
	GroupID: "workflows",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflow(cmd, deployment.KindUpscale, &upscaleFlags)
	},
}

func init() {
	for _, c := range []struct {
		cmd   *cobra.Command
		flags *workflowFlags
	}{{launchCmd, &launchFlags}, {destroyCmd, &destroyFlags}, {upscaleCmd, &upscaleFlags}} {
		addWorkflowFlags(c.cmd, c.flags)
	}
	launchCmd.Flags().BoolVar(&launchFlags.post, "post", false, "Post the deployment report to Slack when the run succeeds")
	destroyCmd.Flags().BoolVar(&destroyFlags.markDestroyed, "mark-destroyed", false, "Mark the deployment destroyed without waiting for the run")
}

func addWorkflowFlags(cmd *cobra.Command, flags *workflowFlags) {
	f := cmd.Flags()
	f.StringVarP(&flags.inputsFile, "inputs", "i", "", "Path to the workflow inputs YAML file")
	f.StringVar(&flags.ref, "ref", "", "Branch or tag to run the workflow on (default from config)")
	f.BoolVarP(&flags.wait, "wait", "w", false, "Follow the run until it completes")
	f.BoolVarP(&flags.force, "force", "f", false, "Skip confirmation prompts")
	f.BoolVar(&flags.cancelOnInterrupt, "cancel-on-interrupt", false, "Cancel the remote run if interrupted while waiting")
	cmd.MarkFlagRequired("inputs")
}

func runWorkflow(cmd *cobra.Command, kind deployment.Kind, flags *workflowFlags) error {
	out := cmd.OutOrStdout()

	file, err := inputs.LoadFile(flags.inputsFile)
	if err != nil {
		return newUsageError("%v", err)
	}

	a, err := newApp(appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := buildRequest(a.cfg, kind, file, flags)
	if err != nil {
		return err
	}

	// Step 1: Confirm with the operator
	fmt.Fprintf(out, "%s on %s/%s@%s with inputs:\n", req.WorkflowName, a.cfg.Owner, a.cfg.Repo, req.Ref)
	if err := printJSON(out, req.Inputs); err != nil {
		return err
	}
	if err := confirmDispatch(cmd, kind, flags.force); err != nil {
		return err
	}

	// Step 2: Wire the client and notifier
	client, err := a.client()
	if err != nil {
		return err
	}
	var notifier notify.Notifier
	if req.Notify {
		n, err := a.notifier()
		if err != nil {
			return err
		}
		notifier = n
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Step 3: Dispatch and follow
	started := time.Now()
	result, err := a.orchestrator(client, notifier).Execute(ctx, req)
	reportResult(out, result, time.Since(started))

	if err != nil {
		if errors.Is(err, context.Canceled) && result.RunID() != 0 {
			fmt.Fprintf(out, "Interrupted; run %d keeps going remotely: %s\n", result.RunID(), client.RunURL(result.RunID()))
			// A second interrupt during the prompt exits immediately.
			stop()
			if shouldCancel(cmd.InOrStdin(), out, result.RunID(), flags.cancelOnInterrupt, isInteractive()) {
				cancelRun(client, result.RunID(), out)
			}
		}
		return err
	}

	// Step 4: Mark destroyed up front when not waiting
	if kind == deployment.KindDestroy && !flags.wait && flags.markDestroyed {
		d, err := a.hist.MarkDestroyed(cmd.Context(), req.NetworkName)
		if err != nil && !errors.Is(err, history.ErrNotFound) {
			return err
		}
		if d != nil {
			fmt.Fprintf(out, "Marked deployment %d (%s) destroyed\n", d.ID, d.Name)
		}
	}

	return nil
}

func buildRequest(cfg *config.Config, kind deployment.Kind, file inputs.Config, flags *workflowFlags) (deployment.Request, error) {
	ref := flags.ref
	if ref == "" {
		ref = cfg.Ref
	}
	if err := security.ValidateRef(ref); err != nil {
		return deployment.Request{}, newUsageError("%v", err)
	}

	req := deployment.Request{Kind: kind, Ref: ref, Wait: flags.wait}

	var err error
	switch kind {
	case deployment.KindLaunch:
		var meta inputs.LaunchMeta
		req.WorkflowName = config.LaunchNetwork
		req.Inputs, meta, err = inputs.Launch(file)
		req.NetworkName = meta.NetworkName
		req.NetworkID = meta.NetworkID
		req.EnvironmentType = meta.EnvironmentType
		req.Description = meta.Description
		req.RelatedPR = meta.RelatedPR
		req.Notify = flags.post
	case deployment.KindDestroy:
		req.WorkflowName = config.DestroyNetwork
		req.Inputs, req.NetworkName, err = inputs.Destroy(file)
	case deployment.KindUpscale:
		req.WorkflowName = config.UpscaleNetwork
		req.Inputs, req.NetworkName, err = inputs.Upscale(file)
	case deployment.KindDispatch:
		wf, ok := inputs.LookupWorkflow(flags.workflow)
		if !ok {
			return deployment.Request{}, fmt.Errorf("unknown workflow %q", flags.workflow)
		}
		req.WorkflowName = wf.Name
		req.Inputs, req.NetworkName, err = wf.Build(file)
	}
	if err != nil {
		return deployment.Request{}, newUsageError("%v", err)
	}

	wf, err := cfg.Workflow(req.WorkflowName)
	if err != nil {
		return deployment.Request{}, err
	}
	req.Workflow = actions.Workflow(wf.ID)
	req.TokenInput = wf.TokenInput

	return req, nil
}

func confirmDispatch(cmd *cobra.Command, kind deployment.Kind, force bool) error {
	if force {
		return nil
	}
	if !isInteractive() {
		return newUsageError("refusing to dispatch without confirmation; pass --force when not on a terminal")
	}

	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	if kind == deployment.KindDestroy {
		ok, err := confirm(in, out, "Have you drained funds from this network?")
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}
	ok, err := confirm(in, out, "Dispatch the workflow?")
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	return nil
}

func reportResult(out io.Writer, result *deployment.Result, elapsed time.Duration) {
	if result == nil || result.Run == nil {
		return
	}

	switch {
	case result.Deployment != nil:
		fmt.Fprintf(out, "Deployment %d recorded for %s\n", result.Deployment.ID, result.Deployment.Name)
		fmt.Fprintf(out, "  Run: %s\n", result.Deployment.RunURL)
	case result.Record != nil:
		if result.Record.NetworkName != "" {
			fmt.Fprintf(out, "Run %d recorded for %s\n", result.Record.RunID, result.Record.NetworkName)
		} else {
			fmt.Fprintf(out, "Run %d recorded for %s\n", result.Record.RunID, result.Record.Workflow)
		}
		fmt.Fprintf(out, "  Run: %s\n", result.Record.RunURL)
	}

	if !result.Completed {
		if result.Run.Status != "" {
			fmt.Fprintf(out, "  Status: %s after %s\n", result.Run.Status, units.HumanDuration(elapsed))
		}
		return
	}
	fmt.Fprintf(out, "  Outcome: %s after %s\n", notify.Outcome(string(result.Run.Status), result.Run.Conclusion), units.HumanDuration(elapsed))
	if result.Destroyed {
		fmt.Fprintln(out, "  Deployment marked destroyed")
	}
	if result.Posted {
		fmt.Fprintln(out, "  Posted to Slack")
	}
}

// shouldCancel decides whether an interrupted run is cancelled remotely.
// Without --cancel-on-interrupt an operator at a terminal is asked.
func shouldCancel(in io.Reader, out io.Writer, runID int64, always, interactive bool) bool {
	if always {
		return true
	}
	if !interactive {
		return false
	}
	ok, err := confirm(in, out, fmt.Sprintf("Cancel run %d?", runID))
	return err == nil && ok
}

func cancelRun(client *actions.Client, runID int64, out io.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := client.CancelRun(ctx, runID); err != nil {
		fmt.Fprintf(out, "Failed to cancel run %d: %v\n", runID, err)
		return
	}
	fmt.Fprintf(out, "Requested cancellation of run %d\n", runID)
}
