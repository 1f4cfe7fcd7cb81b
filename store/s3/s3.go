package s3

// Placeholder for an S3 backed RunStore implementation.
//
// Intent: archive terminal runs as JSON documents in AWS S3 (or compatible
// APIs) implementing the core.RunStore interface, with the user index mapped
// onto key prefixes. This file intentionally remains a stub so that
// downstream contributors can supply credentials / client wiring without
// pulling an AWS dependency into minimal builds. If you implement this, keep
// the dependency surface narrow and make the configuration (bucket, prefix,
// encryption) explicit via a small Config struct.
