// Package toolchain maps the ledger SDK version pinned in a program's Cargo.lock
// to an immutable build-environment image.
//
// Published images only cover selected upstream releases. When the exact
// version has no image, the nearest lower release is used; failing that the
// nearest higher one. If the table is empty no image can be inferred and
// resolution fails with ErrNoCompatibleImage.
package toolchain
