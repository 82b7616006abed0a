package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// TaskIndexEnv carries the array index into each pod, mirroring
// SLURM_ARRAY_TASK_ID.
const TaskIndexEnv = "ARRAY_TASK_ID"

// Kubernetes emulates a job array with one pod per index.
type Kubernetes struct {
	Clientset kubernetes.Interface
	Namespace string
	Image     string
	AppLabel  string
	Profile   Profile
	// Volume is an optional PersistentVolumeClaim mounted at MountPath
	// so pods share inputs and results. It holds the contents of Root,
	// and paths under Root are rewritten to their place under
	// MountPath.
	Volume    string
	MountPath string
	Root      string
}

// rebase maps a submitter-side path under Root onto the volume.
func (k *Kubernetes) rebase(path string) string {
	if k.Volume == "" || k.Root == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(k.Root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.Join(k.MountPath, rel)
}

func (k *Kubernetes) podObject(job *Job, index int, correlationID string) *v1.Pod {
	argv := job.Argv(strconv.Itoa(index))
	for i, arg := range argv {
		argv[i] = k.rebase(arg)
	}
	limits := map[v1.ResourceName]resource.Quantity{}
	if k.Profile.Cores > 0 {
		limits[v1.ResourceCPU] = resource.MustParse(strconv.Itoa(k.Profile.Cores))
	}
	if q, ok := memoryLimit(k.Profile.Mem); ok {
		limits[v1.ResourceMemory] = q
	}
	pod := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      fmt.Sprintf("%s-%s-%d-%s", k.AppLabel, strings.ReplaceAll(job.Name, "_", "-"), index, correlationID[:8]),
			Namespace: k.Namespace,
			Labels: map[string]string{
				"app": k.AppLabel,
				"job": strings.ReplaceAll(job.Name, "_", "-"),
			},
		},
		Spec: v1.PodSpec{
			RestartPolicy: v1.RestartPolicyNever,
			Containers: []v1.Container{
				{
					ImagePullPolicy: v1.PullAlways,
					Name:            "fold",
					Image:           k.Image,
					Command:         argv,
					WorkingDir:      k.rebase(job.Dir),
					Resources: v1.ResourceRequirements{
						Limits: limits,
					},
					Env: []v1.EnvVar{
						{
							Name:  TaskIndexEnv,
							Value: strconv.Itoa(index),
						},
					},
				},
			},
		},
	}
	if k.Volume != "" {
		pod.Spec.Volumes = []v1.Volume{
			{
				Name: "work",
				VolumeSource: v1.VolumeSource{
					PersistentVolumeClaim: &v1.PersistentVolumeClaimVolumeSource{
						ClaimName: k.Volume,
					},
				},
			},
		}
		pod.Spec.Containers[0].VolumeMounts = []v1.VolumeMount{
			{
				Name:      "work",
				MountPath: k.MountPath,
			},
		}
	}
	return pod
}

// memoryLimit converts a SLURM --mem value such as 32G into a binary
// quantity. "0" asks SLURM for the whole node and has no equivalent.
func memoryLimit(mem string) (resource.Quantity, bool) {
	if mem == "" || mem == "0" {
		return resource.Quantity{}, false
	}
	s := strings.TrimSuffix(mem, "B")
	if s == "" {
		return resource.Quantity{}, false
	}
	switch s[len(s)-1] {
	case 'K', 'M', 'G', 'T':
		s += "i"
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		log.Warnf("Ignoring memory limit %q: %v", mem, err)
		return resource.Quantity{}, false
	}
	return q, true
}

// Submit creates one pod per entry of job.
func (k *Kubernetes) Submit(ctx context.Context, job *Job) error {
	correlationID := uuid.New().String()
	log.Infof("Creating %d pods for %s, correlationID=%s", job.Entries, job.Name, correlationID)
	for i := 0; i < job.Entries; i++ {
		pod := k.podObject(job, i, correlationID)
		if _, err := k.Clientset.CoreV1().Pods(k.Namespace).Create(
			ctx,
			pod,
			metav1.CreateOptions{},
		); err != nil {
			return fmt.Errorf("create pod: %v", err)
		}
	}
	return nil
}

// Prune deletes finished pods carrying the app label.
func (k *Kubernetes) Prune(ctx context.Context) (int, error) {
	resp, err := k.Clientset.CoreV1().Pods(k.Namespace).List(
		ctx,
		metav1.ListOptions{
			LabelSelector: fmt.Sprintf("app=%s", k.AppLabel),
		},
	)
	if err != nil {
		return 0, fmt.Errorf("list pods: %v", err)
	}
	deleted := 0
	for _, pod := range resp.Items {
		switch pod.Status.Phase {
		case v1.PodSucceeded:
		case v1.PodFailed:
			log.Warnf("Pod %s failed: %s", pod.Name, pod.Status.Message)
		default:
			continue
		}
		if err := k.Clientset.CoreV1().Pods(k.Namespace).Delete(
			ctx,
			pod.Name,
			metav1.DeleteOptions{},
		); err != nil {
			log.Warnf("failed to delete pod: %v", err)
			continue
		}
		log.Infof("Deleted pod %s", pod.Name)
		deleted++
	}
	return deleted, nil
}
