/*
Package diskfile implements per-device object storage of a single storage
policy.

Objects are stored in hash directories named after the MD5 of the object
name, grouped by the last three characters of the hash:

	<device>/
	├── objects[-N]/                   data directory of the policy
	│   └── <partition>/
	│       ├── hashes.bin             persisted suffix hashes
	│       ├── hashes.invalid         suffixes pending recalculation
	│       └── <suffix>/
	│           └── <hash>/
	│               ├── <ts>.data      or <ts>#<frag>.data
	│               ├── <ts>.meta      or <ts>±<ctype delta>.meta
	│               ├── <ts>.ts        tombstone
	│               └── <ts>.durable   erasure coded durability marker
	├── tmp[-N]/                       temporary files
	├── async_pending[-N]/             deferred container updates
	├── quarantined/objects[-N]/       corrupted hash directories
	└── auditor_status.db              audit checkpoints

The logical state of a hash directory is resolved from file names only,
see Manager.Resolve. Files are published atomically by Writer, readers
never observe partially written files. Every change of a hash directory
invalidates its suffix, Manager.GetHashes recalculates invalidated
suffixes lazily.

The package relies on Linux specific calls: O_TMPFILE, linkat(2), user
extended attributes, fallocate(2) and splice(2).
*/
package diskfile
