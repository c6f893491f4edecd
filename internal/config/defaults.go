package config

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/job"
)

// DefaultJobYAML is the job written by `docpipe init`: build, doc-test every
// markdown file under docs/, test, bench and generate API docs, then publish
// the mdBook site to gh-pages from master builds that are not pull requests.
const DefaultJobYAML = `# docpipe job file
os: linux
toolchain: stable

install:
  - name: toolchain
    role: install
    run: rustup default stable

script:
  - name: build
    role: build
    run: cargo build --verbose
  - name: doctest
    role: doctest
    foreach: "docs/**/*.md"
    run: rustdoc --test {file} -L target/debug -L target/debug/deps
  - name: test
    role: test
    run: cargo test --verbose
  - name: bench
    role: bench
    run: cargo bench --verbose
  - name: doc
    role: docgen
    run: cargo doc --verbose

after_success:
  - name: publish
    when:
      branch: master
      pull_request: false
    steps:
      - name: install-doc-tool
        run: cargo install mdbook
      - name: render
        run: mdbook build mdbook
      - name: import
        uses: git-import
        with:
          dir: mdbook/book
          branch: gh-pages
      - name: push
        uses: git-push
        with:
          branch: gh-pages
          remote: https://github.com/example/project.git
`

// DefaultSpec returns the decoded default job.
func DefaultSpec() job.Spec {
	spec, err := Parse([]byte(DefaultJobYAML))
	if err != nil {
		panic("default job does not parse: " + err.Error())
	}
	return spec
}

// Init writes the default job file to path.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.ConfigError("job file already exists (use --force to overwrite)").
			WithContext("path", path).
			UserAction().
			Build()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.WrapError(err, errors.CategoryFileSystem, "create job file directory").Build()
		}
	}
	if err := os.WriteFile(path, []byte(DefaultJobYAML), 0o600); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "write job file").
			WithContext("path", path).
			Build()
	}
	return nil
}
