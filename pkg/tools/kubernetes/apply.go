package kubernetes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/rest"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/kompanion-dev/kompanion/pkg/tools"
)

// Applier submits declarative manifests to the cluster. Unstructured
// objects keep it independent of any fixed kind list.
type Applier struct {
	client client.Client
}

// NewApplier wraps an existing controller-runtime client.
func NewApplier(c client.Client) *Applier {
	return &Applier{client: c}
}

// NewApplierForConfig builds an Applier from cluster credentials.
func NewApplierForConfig(restCfg *rest.Config) (*Applier, error) {
	c, err := client.New(restCfg, client.Options{})
	if err != nil {
		return nil, fmt.Errorf("kubernetes: creating client: %w", err)
	}
	return NewApplier(c), nil
}

// Register adds the resources_apply tool to the registry.
func (a *Applier) Register(reg *tools.Registry) error {
	return reg.Register(tools.Tool{
		Name:        "resources_apply",
		Description: "Create or update Kubernetes resources from a YAML manifest",
		Params: map[string]tools.Param{
			"manifest":  {Type: "string", Description: "YAML manifest, possibly multi-document"},
			"namespace": {Type: "string", Description: "Namespace for objects that do not set one"},
		},
		Required: []string{"manifest"},
		Dispatch: a.apply,
	})
}

// apply decodes each document and performs create-or-update per object.
func (a *Applier) apply(ctx context.Context, args map[string]any) (any, error) {
	manifest := stringArg(args, "manifest", "")
	if manifest == "" {
		return nil, fmt.Errorf("manifest is required")
	}
	namespace := stringArg(args, "namespace", "")

	objs, err := decodeManifest(manifest)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, fmt.Errorf("manifest contains no objects")
	}

	results := make([]map[string]any, 0, len(objs))
	for _, obj := range objs {
		if namespace != "" && obj.GetNamespace() == "" {
			obj.SetNamespace(namespace)
		}

		action, err := a.createOrUpdate(ctx, obj)
		if err != nil {
			return nil, fmt.Errorf("applying %s %q: %w", obj.GetKind(), obj.GetName(), err)
		}
		slog.Info("applied resource",
			"kind", obj.GetKind(), "name", obj.GetName(), "namespace", obj.GetNamespace(), "action", action)

		results = append(results, map[string]any{
			"kind":      obj.GetKind(),
			"name":      obj.GetName(),
			"namespace": obj.GetNamespace(),
			"action":    action,
		})
	}
	return results, nil
}

// createOrUpdate creates the object, or updates the live copy when it
// already exists.
func (a *Applier) createOrUpdate(ctx context.Context, obj *unstructured.Unstructured) (string, error) {
	existing := &unstructured.Unstructured{}
	existing.SetGroupVersionKind(obj.GroupVersionKind())

	err := a.client.Get(ctx, client.ObjectKeyFromObject(obj), existing)
	if apierrors.IsNotFound(err) {
		if err := a.client.Create(ctx, obj); err != nil {
			return "", err
		}
		return "created", nil
	}
	if err != nil {
		return "", err
	}

	obj.SetResourceVersion(existing.GetResourceVersion())
	if err := a.client.Update(ctx, obj); err != nil {
		return "", err
	}
	return "updated", nil
}

// decodeManifest parses a possibly multi-document YAML manifest into
// unstructured objects, skipping empty documents.
func decodeManifest(manifest string) ([]*unstructured.Unstructured, error) {
	decoder := utilyaml.NewYAMLOrJSONDecoder(strings.NewReader(manifest), 4096)

	var objs []*unstructured.Unstructured
	for {
		var raw map[string]any
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decoding manifest: %w", err)
		}
		if len(raw) == 0 {
			continue
		}

		obj := &unstructured.Unstructured{Object: raw}
		if obj.GetKind() == "" || obj.GetAPIVersion() == "" {
			return nil, fmt.Errorf("manifest object missing apiVersion or kind")
		}
		objs = append(objs, obj)
	}
	return objs, nil
}
