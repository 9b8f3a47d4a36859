// Package bagit turns a populated record directory into a BagIt 1.0 bag
// (payload under data/, multi-algorithm manifests, tag manifests, and
// bag-info.txt), validates it, and serializes it to a gzip-compressed
// tarball that is verified before the working directory is removed.
package bagit
