// Package github fetches the repository context the diagram pipeline works
// from: metadata, the filtered recursive file tree and the README.
//
// # Usage
//
//	ref, err := github.ParseRepoURL("https://github.com/pallets/flask")
//	if err != nil {
//	    return err
//	}
//	client := github.NewClient(github.Credentials{PAT: token}, c, cache.TTLHTTP)
//	rc, err := client.Context(ctx, ref, "")
//
// # Authentication
//
// [Credentials] select one of three modes. A personal access token is sent as
// "token <PAT>". GitHub App credentials (client id, PEM private key,
// installation id) are exchanged for an installation token using an RS256
// JWT; the token is cached for an hour. Without credentials requests are
// anonymous and limited to 60 per hour.
//
// # File Tree
//
// [Client.FileTree] tries the default branch, then main, then master, and
// drops dependency folders, build output, binary assets, lock files and
// editor settings (see [ShouldInclude]). [BuildFileTree] turns the flat path
// list into a depth-limited hierarchy for display.
//
// # Device Flow
//
// [OAuthClient] implements the OAuth device flow used by "easygithub github
// login"; the resulting token acts as a personal access token.
package github
