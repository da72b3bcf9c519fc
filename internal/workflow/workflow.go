// Package workflow generates Argo workflows processing batches of Sentinel-2
// products, one tidepods container per product.
package workflow

import (
	"fmt"
	"strings"

	"github.com/DHI-GRAS/tidepods"
	"github.com/DHI-GRAS/tidepods/internal/config"
	"github.com/DHI-GRAS/tidepods/internal/storage"
	"github.com/alessio/shellescape"
	wfv1 "github.com/argoproj/argo-workflows/v3/pkg/apis/workflow/v1alpha1"
	k8sv1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	k8smeta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/yaml"
)

const (
	entrypoint  = "tidepods"
	scratchName = "scratch"
	scratchPath = "/scratch"
)

// Config parameterizes the generated workflow.
type Config struct {
	Image  string
	Level  tidepods.Level
	Output string
	// LandMask must be readable from the pods, e.g. a gs:// path.
	LandMask string
	COG      bool
	// EngineHome is passed to the pods as TIDEPODS_ENGINE_HOME.
	EngineHome  string
	Retries     int
	Parallelism int64
	CPU         string
	Memory      string
	ScratchSize string
}

// DefaultConfig returns a config with resource requests sized for a single
// Sentinel-2 tile.
func DefaultConfig() Config {
	return Config{
		Retries:     5,
		CPU:         "1",
		Memory:      "4G",
		ScratchSize: "1G",
	}
}

func (c Config) validate() error {
	if c.Image == "" {
		return fmt.Errorf("no container image")
	}
	if _, err := tidepods.ParseLevel(string(c.Level)); err != nil {
		return err
	}
	loc, err := storage.ParseLocation(c.Output)
	if err != nil {
		return err
	}
	if !loc.Remote() {
		return fmt.Errorf("output %q must be a gs:// or s3:// location reachable from the workflow pods", c.Output)
	}
	for _, q := range []string{c.CPU, c.Memory, c.ScratchSize} {
		if _, err := resource.ParseQuantity(q); err != nil {
			return fmt.Errorf("invalid resource quantity %q: %w", q, err)
		}
	}
	return nil
}

func int32Ptr(val int32) *int32 {
	a := val
	return &a
}

func intOrStringPtr(val int) *intstr.IntOrString {
	a := intstr.FromInt(val)
	return &a
}

func resourcePtr(val string) *resource.Quantity {
	res := resource.MustParse(val)
	return &res
}

// Command returns the tidepods command line processing one product.
func Command(input string, c Config) []string {
	cmd := []string{"tidepods", "s2", input,
		"--level", string(c.Level),
		"--output", c.Output,
		"--work-dir", scratchPath,
	}
	if c.LandMask != "" {
		cmd = append(cmd, "--land-mask", c.LandMask)
	}
	if c.COG {
		cmd = append(cmd, "--cog")
	}
	return cmd
}

// Shell returns cmd quoted for a POSIX shell.
func Shell(cmd []string) string {
	return shellescape.QuoteCommand(cmd)
}

// Build returns a workflow running one retried step per input, all steps in
// parallel.
func Build(inputs []string, c Config) (*wfv1.Workflow, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input products")
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	var env []k8sv1.EnvVar
	if c.EngineHome != "" {
		env = append(env, k8sv1.EnvVar{Name: config.Prefix + "_ENGINE_HOME", Value: c.EngineHome})
	}
	wf := &wfv1.Workflow{
		ObjectMeta: k8smeta.ObjectMeta{
			GenerateName: "tidepods-",
		},
		TypeMeta: k8smeta.TypeMeta{
			APIVersion: "argoproj.io/v1alpha1",
			Kind:       "Workflow",
		},
		Spec: wfv1.WorkflowSpec{
			TTLStrategy: &wfv1.TTLStrategy{
				SecondsAfterSuccess: int32Ptr(3600),
			},
			Entrypoint: entrypoint,
			TemplateDefaults: &wfv1.Template{
				Volumes: []k8sv1.Volume{
					{
						Name: scratchName,
						VolumeSource: k8sv1.VolumeSource{
							EmptyDir: &k8sv1.EmptyDirVolumeSource{
								SizeLimit: resourcePtr(c.ScratchSize),
							},
						},
					},
				},
				Container: &k8sv1.Container{
					ImagePullPolicy: k8sv1.PullAlways,
					Resources: k8sv1.ResourceRequirements{
						Requests: k8sv1.ResourceList{
							k8sv1.ResourceCPU:    resource.MustParse(c.CPU),
							k8sv1.ResourceMemory: resource.MustParse(c.Memory),
						},
					},
					Env:        env,
					WorkingDir: scratchPath,
					VolumeMounts: []k8sv1.VolumeMount{
						{
							Name:      scratchName,
							MountPath: scratchPath,
						},
					},
				},
			},
			Templates: []wfv1.Template{
				{Name: entrypoint},
			},
		},
	}
	if c.Parallelism > 0 {
		p := c.Parallelism
		wf.Spec.Parallelism = &p
	}
	ps := wfv1.ParallelSteps{}
	for i, in := range inputs {
		ps.Steps = append(ps.Steps, wfv1.WorkflowStep{
			Name: fmt.Sprintf("s2-%d", i),
			Inline: &wfv1.Template{
				RetryStrategy: &wfv1.RetryStrategy{
					Limit: intOrStringPtr(c.Retries),
				},
				Container: &k8sv1.Container{
					Name:    "tidepods",
					Image:   c.Image,
					Command: Command(in, c),
				},
			},
		})
	}
	wf.Spec.Templates[0].Steps = append(wf.Spec.Templates[0].Steps, ps)
	return wf, nil
}

// Marshal encodes wf as YAML, ready for argo submit.
func Marshal(wf *wfv1.Workflow) ([]byte, error) {
	yb, err := yaml.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow: %w", err)
	}
	return yb, nil
}

// Script returns one shell command line per input, for running a batch
// without Argo.
func Script(inputs []string, c Config) string {
	sb := strings.Builder{}
	for _, in := range inputs {
		sb.WriteString(Shell(Command(in, c)))
		sb.WriteByte('\n')
	}
	return sb.String()
}
