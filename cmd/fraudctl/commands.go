package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"fraud-classifier-service/internal/adapters/primary/http/dto"
	"fraud-classifier-service/internal/adapters/primary/http/middleware"
	"fraud-classifier-service/internal/adapters/secondary/kubernetes"
	"fraud-classifier-service/internal/core/domain"
	"fraud-classifier-service/internal/core/model"
	"fraud-classifier-service/internal/core/services"
	"fraud-classifier-service/internal/registry"
)

// ============================================================================
// Registry commands
// ============================================================================

func (e *cliEnv) registry(ctx context.Context) (*services.RegistryService, func(), error) {
	repo, release, err := registry.Open(ctx, &e.cfg.Registry)
	if err != nil {
		return nil, nil, err
	}
	return services.NewRegistryService(repo), release, nil
}

func (e *cliEnv) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSave(ctx context.Context, e *cliEnv, args []string) error {
	fs := newFlagSet("save")
	file := fs.StringP("file", "f", "", "model bundle JSON")
	name := fs.String("name", "", "artifact name, overriding the bundle's")
	labels := fs.StringToString("label", nil, "extra labels, key=value")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("%w: --file is required", errUsage)
	}

	bundle, err := readBundle(*file)
	if err != nil {
		return err
	}
	if *name != "" {
		bundle.Name = *name
	}
	req, err := bundle.saveRequest()
	if err != nil {
		return err
	}
	if len(*labels) > 0 {
		if req.Labels == nil {
			req.Labels = map[string]string{}
		}
		for k, v := range *labels {
			req.Labels[k] = v
		}
	}

	svc, release, err := e.registry(ctx)
	if err != nil {
		return err
	}
	defer release()

	handle, err := svc.Save(ctx, req)
	if err != nil {
		return err
	}
	return e.printJSON(dto.ToArtifactVersionResponse(*handle))
}

func runLoad(ctx context.Context, e *cliEnv, args []string) error {
	fs := newFlagSet("load")
	predict := fs.String("predict", "", "JSON file holding an array of records to score")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	name, tag, err := refArg(fs)
	if err != nil {
		return err
	}

	svc, release, err := e.registry(ctx)
	if err != nil {
		return err
	}
	defer release()

	if *predict == "" {
		artifact, err := svc.Load(ctx, name, tag)
		if err != nil {
			return err
		}
		return e.printJSON(dto.ToArtifactResponse(artifact))
	}

	data, err := os.ReadFile(*predict)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%w: records must be a JSON array of objects: %v", domain.ErrInvalidRecord, err)
	}

	inference := services.NewInferenceService(svc, services.InferenceConfig{ModelName: name, ModelTag: tag})
	if err := inference.Start(ctx); err != nil {
		return err
	}
	defer inference.Shutdown()

	labels, err := inference.Predict(ctx, records)
	if err != nil {
		return err
	}
	return e.printJSON(labels)
}

func runList(ctx context.Context, e *cliEnv, args []string) error {
	fs := newFlagSet("list")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("%w: list takes at most one artifact name", errUsage)
	}

	svc, release, err := e.registry(ctx)
	if err != nil {
		return err
	}
	defer release()

	if fs.NArg() == 0 {
		names, err := svc.ListNames(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(e.stdout, n)
		}
		return nil
	}

	versions, err := svc.ListVersions(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tCREATED")
	for _, v := range versions {
		fmt.Fprintf(tw, "%s\t%s\n", v.Tag, v.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func runDelete(ctx context.Context, e *cliEnv, args []string) error {
	fs := newFlagSet("delete")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	name, tag, err := refArg(fs)
	if err != nil {
		return err
	}

	svc, release, err := e.registry(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := svc.Delete(ctx, name, tag); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "deleted %s:%s\n", name, tag)
	return nil
}

// ============================================================================
// Deployment commands
// ============================================================================

func readDescriptor(path string) (*domain.DeploymentDescriptor, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: --file is required", errUsage)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read descriptor: %w", err)
	}
	return domain.ParseDeploymentDescriptor(data)
}

// deployer returns a DeployService; the cluster client is only built when
// withCluster is set so render works offline.
func (e *cliEnv) deployer(withCluster bool) (*services.DeployService, error) {
	if !withCluster {
		return services.NewDeployService(nil, kubernetes.Renderer{}, e.cfg.Kubernetes.DefaultNS), nil
	}
	client, err := kubernetes.NewClient(&e.cfg.Kubernetes)
	if err != nil {
		return nil, err
	}
	return services.NewDeployService(client, kubernetes.Renderer{}, e.cfg.Kubernetes.DefaultNS), nil
}

func runRender(_ context.Context, e *cliEnv, args []string) error {
	fs := newFlagSet("render")
	file := fs.StringP("file", "f", "", "deployment descriptor YAML")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	d, err := readDescriptor(*file)
	if err != nil {
		return err
	}
	svc, err := e.deployer(false)
	if err != nil {
		return err
	}
	out, err := svc.Render(d)
	if err != nil {
		return err
	}
	_, err = e.stdout.Write(out)
	return err
}

func runApply(ctx context.Context, e *cliEnv, args []string) error {
	fs := newFlagSet("apply")
	file := fs.StringP("file", "f", "", "deployment descriptor YAML")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	d, err := readDescriptor(*file)
	if err != nil {
		return err
	}
	svc, err := e.deployer(true)
	if err != nil {
		return err
	}
	result, err := svc.Apply(ctx, d)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "deployment/%s %s\n", d.Name, verb(result.DeploymentCreated))
	fmt.Fprintf(e.stdout, "service/%s %s\n", d.Name, verb(result.ServiceCreated))
	return nil
}

func verb(created bool) string {
	if created {
		return "created"
	}
	return "configured"
}

// namespacedArg reads "<name>" plus the --namespace flag.
func namespacedArg(e *cliEnv, name string, args []string) (namespace, target string, err error) {
	fs := newFlagSet(name)
	ns := fs.StringP("namespace", "n", "", "namespace, defaulting to K8S_DEFAULT_NAMESPACE")
	if err := e.parse(fs, args); err != nil {
		return "", "", err
	}
	if fs.NArg() != 1 {
		return "", "", fmt.Errorf("%w: expected one deployment name", errUsage)
	}
	return *ns, fs.Arg(0), nil
}

func runTeardown(ctx context.Context, e *cliEnv, args []string) error {
	namespace, name, err := namespacedArg(e, "teardown", args)
	if err != nil {
		return err
	}
	svc, err := e.deployer(true)
	if err != nil {
		return err
	}
	if err := svc.Teardown(ctx, namespace, name); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "deleted %s/%s\n", namespace, name)
	return nil
}

func runStatus(ctx context.Context, e *cliEnv, args []string) error {
	namespace, name, err := namespacedArg(e, "status", args)
	if err != nil {
		return err
	}
	svc, err := e.deployer(true)
	if err != nil {
		return err
	}
	status, err := svc.Status(ctx, namespace, name)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tREADY\tUP-TO-DATE\tAVAILABLE\tENDPOINT")
	endpoint := status.ExternalEndpoint
	if endpoint == "" {
		endpoint = "<pending>"
	}
	fmt.Fprintf(tw, "%s\t%d/%d\t%d\t%d\t%s\n", status.Name, status.ReadyReplicas, status.DesiredReplicas,
		status.UpdatedReplicas, status.AvailableReplicas, endpoint)
	return tw.Flush()
}

// ============================================================================
// Packaging and auth
// ============================================================================

func runPackage(ctx context.Context, e *cliEnv, args []string) error {
	fs := newFlagSet("package")
	file := fs.StringP("file", "f", "build.yaml", "build spec YAML")
	if err := e.parse(fs, args); err != nil {
		return err
	}
	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read build spec: %w", err)
	}
	spec, err := domain.ParseBuildSpec(data)
	if err != nil {
		return err
	}

	if len(spec.Models) > 0 {
		svc, release, err := e.registry(ctx)
		if err != nil {
			return err
		}
		defer release()
		for _, ref := range spec.Models {
			name, tag := domain.ParseRef(ref)
			artifact, err := svc.Load(ctx, name, tag)
			if err != nil {
				return fmt.Errorf("model %s: %w", ref, err)
			}
			fmt.Fprintf(e.stdout, "model   %s -> %s\n", ref, artifact.Handle())
		}
	}
	fmt.Fprintf(e.stdout, "service %s\n", spec.Service)
	fmt.Fprintf(e.stdout, "include %s\n", strings.Join(spec.Include, ", "))
	for _, p := range spec.Packages {
		fmt.Fprintf(e.stdout, "package %s\n", p)
	}
	return nil
}

func runHashKey(_ context.Context, e *cliEnv, args []string) error {
	fs := pflag.NewFlagSet("hash-key", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 1 || fs.Arg(0) == "" {
		return fmt.Errorf("%w: expected the API key to hash", errUsage)
	}
	hash, err := middleware.HashAPIKey(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(e.stdout, hash)
	return nil
}
