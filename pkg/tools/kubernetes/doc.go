// Package kubernetes exposes cluster inspection and manifest
// application as tools. Read operations go through a client-go
// clientset; manifest application uses a controller-runtime client so
// arbitrary resource kinds can be handled through unstructured objects.
package kubernetes
