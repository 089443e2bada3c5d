// Package workspace manages the scratch directories that hold cloned sources
// and extracted executables.
//
// Default mode creates <tmp>/verifybuild/<uuid>. Current-directory mode creates
// a hidden .<uuid> directory under the working directory instead, for hosts
// where the build sandbox cannot mount the system temp directory. Both kinds
// are registered with the session so an interrupt still removes them.
package workspace
