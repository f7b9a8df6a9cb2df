package packages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"
)

// Ext is the extension of files that hold script modules.
const Ext = ".star"

// Invalidator drops cached units. The loader implements it.
type Invalidator interface {
	Invalidate(id string) int
}

// Options configure a Controller.
type Options struct {
	// Label selects package objects. Its value is the dotted package name;
	// an empty value is the top level.
	Label string

	// Namespace restricts the controller to one namespace. Empty watches all.
	Namespace string

	// Dir is the directory packages are written to.
	Dir string

	// ResyncPeriod is the informer resync period. Zero disables resyncs.
	ResyncPeriod time.Duration
}

// Controller writes the data of labelled ConfigMaps and Secrets to package
// directories and invalidates the modules it changes.
type Controller struct {
	client      kubernetes.Interface
	invalidator Invalidator
	opts        Options
	logger      zerolog.Logger

	// mu serializes handlers of the ConfigMap and Secret informers, which
	// share directories.
	mu sync.Mutex
}

// NewController creates a package controller.
func NewController(client kubernetes.Interface, invalidator Invalidator, logger zerolog.Logger, opts Options) *Controller {
	return &Controller{
		client:      client,
		invalidator: invalidator,
		opts:        opts,
		logger:      logger.With().Str("component", "packages").Logger(),
	}
}

// Run watches package objects until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	if err := os.MkdirAll(c.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create packages directory: %w", err)
	}

	factory := informers.NewSharedInformerFactoryWithOptions(c.client, c.opts.ResyncPeriod,
		informers.WithNamespace(c.opts.Namespace),
		informers.WithTweakListOptions(func(o *metav1.ListOptions) {
			o.LabelSelector = c.opts.Label
		}),
	)
	configMaps := factory.Core().V1().ConfigMaps().Informer()
	secrets := factory.Core().V1().Secrets().Informer()

	handler := cache.ResourceEventHandlerFuncs{
		AddFunc:    c.onAdd,
		UpdateFunc: c.onUpdate,
		DeleteFunc: c.onDelete,
	}
	for _, informer := range []cache.SharedIndexInformer{configMaps, secrets} {
		if _, err := informer.AddEventHandler(handler); err != nil {
			return fmt.Errorf("failed to add event handler: %w", err)
		}
	}

	factory.Start(ctx.Done())
	defer factory.Shutdown()

	if !cache.WaitForCacheSync(ctx.Done(), configMaps.HasSynced, secrets.HasSynced) {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to sync package informers")
	}
	c.logger.Info().
		Str("label", c.opts.Label).
		Str("namespace", c.opts.Namespace).
		Str("dir", c.opts.Dir).
		Msg("Watching packages")

	<-ctx.Done()
	return nil
}

// pkgObject is the package view of a ConfigMap or Secret.
type pkgObject struct {
	ref     string
	version string
	labeled bool
	pkg     []string
	files   map[string][]byte
}

func (c *Controller) objectOf(obj interface{}) (*pkgObject, bool) {
	if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
		obj = tombstone.Obj
	}
	o := &pkgObject{files: map[string][]byte{}}
	var meta metav1.ObjectMeta
	switch x := obj.(type) {
	case *corev1.ConfigMap:
		meta = x.ObjectMeta
		for k, v := range x.Data {
			o.files[k] = []byte(v)
		}
		for k, v := range x.BinaryData {
			o.files[k] = v
		}
		o.ref = "configmap/" + x.Namespace + "/" + x.Name
	case *corev1.Secret:
		meta = x.ObjectMeta
		for k, v := range x.Data {
			o.files[k] = v
		}
		o.ref = "secret/" + x.Namespace + "/" + x.Name
	default:
		return nil, false
	}
	o.version = meta.ResourceVersion

	value, ok := meta.Labels[c.opts.Label]
	if !ok {
		return o, true
	}
	pkg, err := ParsePackage(value)
	if err != nil {
		c.logger.Error().Err(err).Str("object", o.ref).Msg("Invalid package label")
		return o, true
	}
	o.labeled = true
	o.pkg = pkg
	return o, true
}

// ParsePackage splits a dotted package name. Every segment must be an
// identifier; the empty name is the top level.
func ParsePackage(name string) ([]string, error) {
	if name == "" {
		return nil, nil
	}
	segments := strings.Split(name, ".")
	for _, s := range segments {
		if !isIdentifier(s) {
			return nil, fmt.Errorf("package has invalid package name: %s", name)
		}
	}
	return segments, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

func (c *Controller) dir(pkg []string) string {
	return filepath.Join(append([]string{c.opts.Dir}, pkg...)...)
}

// moduleOf returns the dotted module of a file, if the file holds one.
func moduleOf(pkg []string, name string) (string, bool) {
	if filepath.Ext(name) != Ext || strings.Count(name, ".") != 1 {
		return "", false
	}
	return strings.Join(append(append([]string{}, pkg...), strings.TrimSuffix(name, Ext)), "."), true
}

func validFileName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func (c *Controller) onAdd(obj interface{}) {
	o, ok := c.objectOf(obj)
	if !ok || !o.labeled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.create(o)
}

func (c *Controller) onUpdate(oldObj, newObj interface{}) {
	old, ok := c.objectOf(oldObj)
	if !ok {
		return
	}
	cur, ok := c.objectOf(newObj)
	if !ok || (old.version != "" && old.version == cur.version) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.update(old, cur)
}

func (c *Controller) onDelete(obj interface{}) {
	o, ok := c.objectOf(obj)
	if !ok || !o.labeled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delete(o)
}

func (c *Controller) create(o *pkgObject) {
	dir := c.dir(o.pkg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.logger.Error().Err(err).Str("object", o.ref).Msg("Failed to create package directory")
		return
	}
	for _, name := range sortedNames(o.files) {
		c.write(o, dir, name, "Created")
	}
}

func (c *Controller) update(old, cur *pkgObject) {
	oldDir := ""
	if old.labeled {
		oldDir = c.dir(old.pkg)
	}
	remaining := map[string]bool{}
	if old.labeled {
		for name := range old.files {
			remaining[name] = true
		}
	}

	if cur.labeled {
		dir := c.dir(cur.pkg)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.logger.Error().Err(err).Str("object", cur.ref).Msg("Failed to create package directory")
			return
		}
		samePackage := dir == oldDir
		for _, name := range sortedNames(cur.files) {
			switch {
			case samePackage && old.files[name] != nil && bytes.Equal(old.files[name], cur.files[name]):
				c.logFile(cur.pkg, name, "Unchanged")
			case samePackage && remaining[name]:
				c.write(cur, dir, name, "Updated")
			default:
				c.write(cur, dir, name, "Created")
			}
			if samePackage {
				delete(remaining, name)
			}
		}
	}

	if !old.labeled {
		return
	}
	names := make([]string, 0, len(remaining))
	for name := range remaining {
		names = append(names, name)
	}
	sort.Strings(names)
	c.remove(old.pkg, names, "Removed")
}

func (c *Controller) delete(o *pkgObject) {
	c.remove(o.pkg, sortedNames(o.files), "Deleted")
}

func (c *Controller) write(o *pkgObject, dir, name, action string) {
	if !validFileName(name) {
		c.logger.Error().Str("object", o.ref).Str("file", name).Msg("Invalid package file name")
		return
	}
	if err := os.WriteFile(filepath.Join(dir, name), o.files[name], 0o644); err != nil {
		c.logger.Error().Err(err).Str("object", o.ref).Str("file", name).Msg("Failed to write package file")
		return
	}
	if module, ok := moduleOf(o.pkg, name); ok {
		c.invalidator.Invalidate(module)
	}
	c.logFile(o.pkg, name, action)
}

// remove deletes files of pkg, then prunes the package directories left
// empty.
func (c *Controller) remove(pkg []string, names []string, action string) {
	dir := c.dir(pkg)
	for _, name := range names {
		if !validFileName(name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Error().Err(err).Str("file", name).Msg("Failed to remove package file")
		}
		if module, ok := moduleOf(pkg, name); ok {
			c.invalidator.Invalidate(module)
		}
		c.logFile(pkg, name, action)
	}

	pkg = append([]string{}, pkg...)
	for len(pkg) > 0 && isEmptyDir(dir) {
		if err := os.Remove(dir); err != nil {
			c.logger.Error().Err(err).Str("dir", dir).Msg("Failed to remove package directory")
			return
		}
		name := strings.Join(pkg, ".")
		c.invalidator.Invalidate(name)
		c.logger.Info().Msgf("%s package: %s", action, name)
		dir = filepath.Dir(dir)
		pkg = pkg[:len(pkg)-1]
	}
}

func (c *Controller) logFile(pkg []string, name, action string) {
	if module, ok := moduleOf(pkg, name); ok {
		c.logger.Info().Msgf("%s module: %s", action, module)
		return
	}
	c.logger.Info().Msgf("%s file: %s", action, strings.Join(append(append([]string{}, pkg...), name), "/"))
}

func isEmptyDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) == 0
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
