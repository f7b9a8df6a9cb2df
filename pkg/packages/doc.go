// Package packages materializes script packages stored in the cluster.
//
// ConfigMaps and Secrets carrying the package label are written to a
// directory on the module search path: the label value names the package,
// and each data key becomes a file in it. Files ending in .star are modules
// of the package. Every module or package whose files change is passed to
// the Invalidator, so the next request recompiles it.
package packages
