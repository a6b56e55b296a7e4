// Package securestore provides encryption at rest for small secrets.
//
// It has three parts:
//   - KeyStore hands out the per-device key material. FileKeyStore keeps it in
//     a 0600 file under the "keys" namespace and memoizes it for the process
//     lifetime.
//   - BlobStore is a tiny namespaced key-value area. FileBlobStore writes each
//     record atomically (temp file + rename) and can watch records for changes
//     made by other processes.
//   - Sealer derives a content key from the key material with HKDF-SHA256 and
//     seals payloads as compact JWE (alg "dir", enc "A256GCM"). Any tampering
//     with a sealed record makes Open fail.
package securestore
