// Package lazybd implements a lazy-materializing layer adapter for
// container image layers.
//
// A layer is opened immediately against its remote blob and, once a
// background download verifies and commits it to local disk, transparently
// switches its reads over to the local copy without disrupting in-flight
// reads. Opened layers are shared process-wide by identity, and an ordered
// lower stack of layers can be opened in parallel and combined into a
// single logical volume by an external stacker.
//
// # Basic usage
//
//	c, err := lazybd.NewClient(lazybd.WithRepoBlobURL("https://blobs.example.com/v2/repo"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	f, err := c.Open(ctx, core.LayerIdentity{Directory: dir, Digest: d, Size: size}, nil)
//
// Stacking an ordered set of lower layers into one volume requires an
// external Stacker (LSMT stacking is out of scope here):
//
//	vol, err := c.OpenLowers(ctx, layers, myStacker, nil)
package lazybd
