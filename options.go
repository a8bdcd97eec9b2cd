package canonical

// Option is used to configure a Resolver.
type Option func(*Resolver)

// Guess sets the collaborator consulted for requests that matched nothing and
// could not be resolved by their query variables.
func Guess(g Guesser) Option {
	return func(r *Resolver) {
		r.guesser = g
	}
}

// VerifyPreview sets the function used to validate preview links of published
// posts.
// By default no preview link is valid, so previews of published posts are
// treated as regular requests.
func VerifyPreview(f PreviewVerifier) Option {
	return func(r *Resolver) {
		r.verifyPreview = f
	}
}

// Filter registers a veto hook that may replace or cancel any computed
// redirect.
// Hooks run in the order they were registered; the first one to cancel wins.
func Filter(v Veto) Option {
	return func(r *Resolver) {
		r.vetoes = append(r.vetoes, v)
	}
}
