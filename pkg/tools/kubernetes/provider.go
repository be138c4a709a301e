package kubernetes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// Config holds cluster provider settings.
type Config struct {
	// Kubeconfig is the path to a kubeconfig file. Empty means
	// in-cluster config first, then the default kubeconfig location.
	Kubeconfig string

	// LogTailLines bounds pod log retrieval. Defaults to 100.
	LogTailLines int64
}

// Provider exposes cluster read operations as tools.
type Provider struct {
	clientset kubernetes.Interface
	tailLines int64
}

// NewProvider connects to the cluster and returns a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	restCfg, err := RESTConfig(cfg.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("kubernetes: building client config: %w", err)
	}
	return NewProviderForConfig(restCfg, cfg)
}

// NewProviderForConfig builds a Provider from resolved cluster
// credentials, letting callers share one rest.Config with the Applier.
func NewProviderForConfig(restCfg *rest.Config, cfg Config) (*Provider, error) {
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes: creating clientset: %w", err)
	}
	return NewProviderWithClientset(clientset, cfg), nil
}

// NewProviderWithClientset wraps an existing clientset. Used by tests
// and by callers that manage their own connection.
func NewProviderWithClientset(clientset kubernetes.Interface, cfg Config) *Provider {
	tail := cfg.LogTailLines
	if tail <= 0 {
		tail = 100
	}
	return &Provider{clientset: clientset, tailLines: tail}
}

// RESTConfig resolves cluster credentials: in-cluster service account
// first, then an explicit or default kubeconfig.
func RESTConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
		if env := os.Getenv("KUBECONFIG"); env != "" {
			kubeconfig = env
		} else if home, err := os.UserHomeDir(); err == nil {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// Ping verifies API server connectivity.
func (p *Provider) Ping(context.Context) error {
	_, err := p.clientset.Discovery().ServerVersion()
	return err
}

// Register adds the cluster read tools to the registry.
func (p *Provider) Register(reg *tools.Registry) error {
	defs := []tools.Tool{
		{
			Name:        "pods_list",
			Description: "List pods across all namespaces",
			Dispatch:    p.podsList,
		},
		{
			Name:        "pods_list_in_namespace",
			Description: "List pods in a specific namespace",
			Params: map[string]tools.Param{
				"namespace": {Type: "string", Description: "Namespace to list pods from"},
			},
			Required: []string{"namespace"},
			Dispatch: p.podsListInNamespace,
		},
		{
			Name:        "pods_get",
			Description: "Get details for one pod",
			Params: map[string]tools.Param{
				"name":      {Type: "string", Description: "Pod name"},
				"namespace": {Type: "string", Description: "Namespace, defaults to \"default\""},
			},
			Required: []string{"name"},
			Dispatch: p.podsGet,
		},
		{
			Name:        "pods_log",
			Description: "Fetch recent log lines from a pod",
			Params: map[string]tools.Param{
				"name":      {Type: "string", Description: "Pod name"},
				"namespace": {Type: "string", Description: "Namespace, defaults to \"default\""},
			},
			Required: []string{"name"},
			Dispatch: p.podsLog,
		},
		{
			Name:        "namespaces_list",
			Description: "List namespaces in the cluster",
			Dispatch:    p.namespacesList,
		},
		{
			Name:        "events_list",
			Description: "List recent events in a namespace",
			Params: map[string]tools.Param{
				"namespace": {Type: "string", Description: "Namespace, defaults to \"default\""},
			},
			Dispatch: p.eventsList,
		},
	}
	for _, t := range defs {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// stringArg reads a string argument with a fallback.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// podSummary flattens the fields the model actually needs to reason
// about a pod.
func podSummary(pod corev1.Pod) map[string]any {
	var restarts int32
	ready := 0
	for _, cs := range pod.Status.ContainerStatuses {
		restarts += cs.RestartCount
		if cs.Ready {
			ready++
		}
	}
	return map[string]any{
		"name":      pod.Name,
		"namespace": pod.Namespace,
		"status":    string(pod.Status.Phase),
		"ready":     fmt.Sprintf("%d/%d", ready, len(pod.Spec.Containers)),
		"restarts":  restarts,
		"node":      pod.Spec.NodeName,
	}
}

func (p *Provider) podsList(ctx context.Context, _ map[string]any) (any, error) {
	list, err := p.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing pods: %w", err)
	}
	out := make([]map[string]any, 0, len(list.Items))
	for _, pod := range list.Items {
		out = append(out, podSummary(pod))
	}
	return out, nil
}

func (p *Provider) podsListInNamespace(ctx context.Context, args map[string]any) (any, error) {
	ns := stringArg(args, "namespace", "default")
	list, err := p.clientset.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing pods in %s: %w", ns, err)
	}
	out := make([]map[string]any, 0, len(list.Items))
	for _, pod := range list.Items {
		out = append(out, podSummary(pod))
	}
	return out, nil
}

func (p *Provider) podsGet(ctx context.Context, args map[string]any) (any, error) {
	name := stringArg(args, "name", "")
	if name == "" {
		return nil, fmt.Errorf("pod name is required")
	}
	ns := stringArg(args, "namespace", "default")

	pod, err := p.clientset.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("getting pod %s/%s: %w", ns, name, err)
	}

	summary := podSummary(*pod)
	summary["labels"] = pod.Labels
	containers := make([]map[string]any, 0, len(pod.Spec.Containers))
	for _, c := range pod.Spec.Containers {
		containers = append(containers, map[string]any{
			"name":  c.Name,
			"image": c.Image,
		})
	}
	summary["containers"] = containers
	if !pod.CreationTimestamp.IsZero() {
		summary["created"] = pod.CreationTimestamp.UTC().Format("2006-01-02T15:04:05Z")
	}
	return summary, nil
}

func (p *Provider) podsLog(ctx context.Context, args map[string]any) (any, error) {
	name := stringArg(args, "name", "")
	if name == "" {
		return nil, fmt.Errorf("pod name is required")
	}
	ns := stringArg(args, "namespace", "default")

	tail := p.tailLines
	req := p.clientset.CoreV1().Pods(ns).GetLogs(name, &corev1.PodLogOptions{TailLines: &tail})
	data, err := req.Do(ctx).Raw()
	if err != nil {
		return nil, fmt.Errorf("fetching logs for %s/%s: %w", ns, name, err)
	}
	return string(data), nil
}

func (p *Provider) namespacesList(ctx context.Context, _ map[string]any) (any, error) {
	list, err := p.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing namespaces: %w", err)
	}
	out := make([]map[string]any, 0, len(list.Items))
	for _, ns := range list.Items {
		out = append(out, map[string]any{
			"name":   ns.Name,
			"status": string(ns.Status.Phase),
		})
	}
	return out, nil
}

func (p *Provider) eventsList(ctx context.Context, args map[string]any) (any, error) {
	ns := stringArg(args, "namespace", "default")
	list, err := p.clientset.CoreV1().Events(ns).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing events in %s: %w", ns, err)
	}
	out := make([]map[string]any, 0, len(list.Items))
	for _, ev := range list.Items {
		entry := map[string]any{
			"type":    ev.Type,
			"reason":  ev.Reason,
			"object":  fmt.Sprintf("%s/%s", ev.InvolvedObject.Kind, ev.InvolvedObject.Name),
			"message": ev.Message,
			"count":   ev.Count,
		}
		if !ev.LastTimestamp.IsZero() {
			entry["last_seen"] = ev.LastTimestamp.UTC().Format("2006-01-02T15:04:05Z")
		}
		out = append(out, entry)
	}
	return out, nil
}
