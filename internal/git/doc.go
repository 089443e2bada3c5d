// Package git fetches the source repository of a program: it clones the
// remote, checks out the requested commit and reports the resolved HEAD.
//
// Clones of public repositories need no credentials. A token from
// VERIFYBUILD_GIT_TOKEN is sent as HTTP basic auth and an SSH key from
// VERIFYBUILD_GIT_SSH_KEY is used for ssh URLs.
package git
