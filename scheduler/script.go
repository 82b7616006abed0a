// Package scheduler renders and submits one job array per sequence file.
package scheduler

import (
	"bytes"
	"fmt"
	"text/template"
)

// Profile describes the resources of one array task.
type Profile struct {
	Partition string   `yaml:"partition"`
	QOS       string   `yaml:"qos"`
	Cores     int      `yaml:"cores"`
	GPUs      string   `yaml:"gpus"`
	Mem       string   `yaml:"mem"`
	Time      string   `yaml:"time"`
	Exclusive bool     `yaml:"exclusive"`
	Setup     []string `yaml:"setup"`
}

// Profiles are the hardware targets known out of the box.
var Profiles = map[string]Profile{
	"gpu": {
		Partition: "htc",
		QOS:       "public",
		Cores:     32,
		GPUs:      "a100:1",
		Mem:       "32G",
		Time:      "0-01:00:00",
		Setup: []string{
			"module load cuda-13.0.1-gcc-12.1.0",
			"module load mamba/latest",
			"source activate monsterproteinstability",
		},
	},
	"gaudi": {
		Partition: "gaudi",
		QOS:       "public",
		Cores:     152,
		Mem:       "0",
		Time:      "0-01:00:00",
		Exclusive: true,
		Setup: []string{
			"module load mamba/latest",
			"source activate gaudi-pytorch-diffusion-1.22.0.740",
			"export PT_HPU_LAZY_MODE=1",
		},
	},
}

// LookupProfile returns the named profile.
func LookupProfile(name string) (Profile, error) {
	p, ok := Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}

// TaskIndexVar is expanded by SLURM to the index of the array task.
const TaskIndexVar = "${SLURM_ARRAY_TASK_ID}"

var slurmTemplate = template.Must(template.New("slurm").Parse(`#!/bin/bash
#SBATCH --job-name={{.Job.Name}}
#SBATCH -N 1
{{- with .Profile.Partition}}
#SBATCH -p {{.}}
{{- end}}
{{- if ne .Profile.Cores 0}}
#SBATCH -c {{.Profile.Cores}}
{{- end}}
{{- with .Profile.QOS}}
#SBATCH -q {{.}}
{{- end}}
{{- with .Profile.Time}}
#SBATCH --time={{.}}
{{- end}}
{{- with .Profile.GPUs}}
#SBATCH -G {{.}}
{{- end}}
#SBATCH --array=0-{{.Job.LastIndex}}
{{- with .Profile.Mem}}
#SBATCH --mem={{.}}
{{- end}}
#SBATCH -o slurm.%j.out
#SBATCH -e slurm.%j.out
#SBATCH --export=NONE
{{- if .Profile.Exclusive}}
#SBATCH --exclusive
{{- end}}

cd $SLURM_SUBMIT_DIR
{{range .Profile.Setup}}
{{.}}
{{- end}}

{{.Command}}
`))

// Render returns the batch script for job.
func Render(job *Job, profile Profile) ([]byte, error) {
	var buf bytes.Buffer
	if err := slurmTemplate.Execute(&buf, struct {
		Job     *Job
		Profile Profile
		Command string
	}{
		Job:     job,
		Profile: profile,
		Command: job.Command(TaskIndexVar),
	}); err != nil {
		return nil, fmt.Errorf("render %s: %v", job.Name, err)
	}
	return buf.Bytes(), nil
}
