package gitinfo

import (
	"errors"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/reeveci/reeve-matrix/schema"
)

const (
	FACT_BRANCH = "branch"
	FACT_COMMIT = "commit"
	FACT_TAG    = "tag"
)

// Facts describes the checked out revision of the repository containing dir.
// A directory outside of any repository yields no facts and no error.
func Facts(dir string) (map[string]schema.Fact, error) {
	facts := make(map[string]schema.Fact)

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return facts, nil
	}
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// no commits yet
		return facts, nil
	}
	if err != nil {
		return nil, err
	}

	facts[FACT_COMMIT] = schema.Fact{head.Hash().String()}
	if head.Name().IsBranch() {
		facts[FACT_BRANCH] = schema.Fact{head.Name().Short()}
	}

	tags, err := tagsAt(repo, head.Hash())
	if err != nil {
		return nil, err
	}
	if len(tags) > 0 {
		facts[FACT_TAG] = tags
	}

	return facts, nil
}

func tagsAt(repo *git.Repository, commit plumbing.Hash) (schema.Fact, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var result schema.Fact
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		// annotated tags point to a tag object
		if tag, err := repo.TagObject(target); err == nil {
			target = tag.Target
		}
		if target == commit {
			result = append(result, ref.Name().Short())
		}
		return nil
	})
	return result, err
}
