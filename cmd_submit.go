package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/thavlik/foldy-array/config"
	"github.com/thavlik/foldy-array/scheduler"
)

var submitFlags struct {
	dryRun bool
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Write and submit one job array per sequence file",
	Args:  cobra.NoArgs,
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().BoolVar(&submitFlags.dryRun, "dry-run", false, "write the job scripts without submitting them")
}

// dryRun only logs what would have been submitted.
type dryRun struct{}

func (dryRun) Submit(_ context.Context, job *scheduler.Job) error {
	log.Infof("Dry run: %s would run %d tasks in %s", job.Name, job.Entries, job.Dir)
	return nil
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	profile, err := cfg.Profile()
	if err != nil {
		return err
	}
	var backend scheduler.Backend = dryRun{}
	if !submitFlags.dryRun {
		if backend, err = newBackend(profile); err != nil {
			return err
		}
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return err
	}
	// Tasks run from their job folder, so they are pointed back at the
	// same root and config.
	args := []string{"--root", root}
	if rootFlags.config != "" {
		path, err := filepath.Abs(rootFlags.config)
		if err != nil {
			return err
		}
		args = append([]string{"--config", path}, args...)
	}
	s := &scheduler.Submitter{
		Backend:    backend,
		Profile:    profile,
		Root:       root,
		DataDir:    dataDir(),
		Executable: cfg.Executable,
		Args:       args,
	}
	jobs, err := s.Run(cmd.Context())
	if err != nil {
		return err
	}
	total := 0
	for _, job := range jobs {
		total += job.Entries
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Submitted %d job arrays, %d tasks\n", len(jobs), total)
	return nil
}

func newBackend(profile scheduler.Profile) (scheduler.Backend, error) {
	switch cfg.Scheduler.Backend {
	case config.BackendKubernetes:
		return newKubernetes(profile)
	default:
		return &scheduler.Slurm{Command: cfg.Scheduler.Sbatch}, nil
	}
}

func newKubernetes(profile scheduler.Profile) (*scheduler.Kubernetes, error) {
	k := cfg.Scheduler.Kubernetes
	var restConfig *rest.Config
	var err error
	if k.Kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", k.Kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %v", err)
	}
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("clientset: %v", err)
	}
	return &scheduler.Kubernetes{
		Clientset: clientset,
		Namespace: k.Namespace,
		Image:     k.Image,
		AppLabel:  k.AppLabel,
		Profile:   profile,
		Volume:    k.Volume,
		MountPath: k.MountPath,
		Root:      cfg.Root,
	}, nil
}
