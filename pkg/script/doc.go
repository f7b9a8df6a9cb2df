// Package script runs composition units written in Starlark.
//
// A script declares a unit by binding the result of BaseComposite to a
// global:
//
//	def compose(self):
//	    bucket = self.resources.bucket("s3.aws.upbound.io/v1beta1", "Bucket")
//	    bucket.spec.forProvider.region = self.spec.region
//	    self.status.bucketArn = self.resources.bucket.status.atProvider.arn
//
//	Composite = BaseComposite(compose)
//
// Exec runs the top level of a script once and freezes its globals, so the
// resulting Module can serve concurrent requests. Each call of a unit runs on
// its own starlark.Thread over the composite of one request.
//
// Inside compose, `self` exposes the request, the response under
// construction and the facets of package composite. Mapping and sequence
// fields are live views: attribute and index reads navigate, assignments
// write through, and reading a field that does not exist yields a falsy
// placeholder that can still be assigned to.
package script
