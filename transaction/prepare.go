package transaction

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	condacore "github.com/conda-incubator/condacore"
	"github.com/conda-incubator/condacore/action"
	"github.com/conda-incubator/condacore/pkgcache"
	"github.com/conda-incubator/condacore/prefix"
)

// BuildOptions configures Prepare's filesystem-facing choices: where the
// prefix's bin directory and site-packages directory live, and whether
// post-link scripts may run from the package cache unguarded.
type BuildOptions struct {
	RootPrefix                string
	AllowCachePostLinkScripts bool

	// EnvironmentsTxtPath is appended to / removed from by the
	// register/unregister actions; left empty to skip that bookkeeping.
	EnvironmentsTxtPath string
}

// sitePackagesDir returns the prefix-relative directory a noarch:python
// package's "site-packages/"-prefixed paths.json entries are remapped
// into, grounded on the original's noarch-python site-packages
// substitution: the interpreter's own versioned lib directory on unix, a
// single shared Lib\site-packages on windows.
func sitePackagesDir(pythonVersion string) string {
	if runtime.GOOS == "windows" {
		return "Lib/site-packages"
	}
	major, minor := "3", "1"
	if parts := strings.SplitN(pythonVersion, ".", 3); len(parts) >= 2 {
		major, minor = parts[0], parts[1]
	}
	return fmt.Sprintf("lib/python%s.%s/site-packages", major, minor)
}

const noarchPythonPlaceholder = "site-packages/"

// remapNoarchPath substitutes a noarch:python package's "site-packages/"
// placeholder prefix with the prefix's real site-packages directory;
// non-site-packages paths (e.g. bin/ entry points) pass through unchanged.
func remapNoarchPath(relPath, siteDir string) string {
	if !strings.HasPrefix(relPath, noarchPythonPlaceholder) {
		return relPath
	}
	return filepath.Join(siteDir, strings.TrimPrefix(relPath, noarchPythonPlaceholder))
}

// pathsJSON mirrors info/paths.json's schema (spec.md §6): a
// paths_version plus one entry per linked file, each carrying the
// checksums, size, and optional prefix-placeholder metadata a LinkPath
// action needs.
type pathsJSON struct {
	PathsVersion int             `json:"paths_version"`
	Paths        []pathEntryJSON `json:"paths"`
}

type pathEntryJSON struct {
	Path              string `json:"_path"`
	PathType          string `json:"path_type"`
	SHA256            string `json:"sha256"`
	SHA256InPrefix    string `json:"sha256_in_prefix"`
	SizeInBytes       int64  `json:"size_in_bytes"`
	FileMode          string `json:"file_mode"`
	PrefixPlaceholder string `json:"prefix_placeholder"`
	NoLink            bool   `json:"no_link"`
}

// readPaths loads an extracted package's per-file manifest. info/paths.json
// is preferred; when absent (older package builds), it falls back to the
// legacy trio of info/files (one relative path per line), info/has_prefix
// (path, placeholder, and "text"/"binary" mode), and info/no_link (paths to
// copy rather than hardlink), per spec.md §6.
func readPaths(extractedDir string) ([]condacore.PathData, error) {
	if b, err := os.ReadFile(filepath.Join(extractedDir, "info", "paths.json")); err == nil {
		return decodePathsJSON(b)
	}
	return readLegacyPaths(extractedDir)
}

func decodePathsJSON(b []byte) ([]condacore.PathData, error) {
	var pj pathsJSON
	if err := json.Unmarshal(b, &pj); err != nil {
		return nil, &condacore.Error{Kind: condacore.ErrPermanent, Op: condacore.OpCondaVerificationError, Inner: err}
	}
	out := make([]condacore.PathData, len(pj.Paths))
	for i, p := range pj.Paths {
		pd := condacore.PathData{
			Path:              p.Path,
			PathType:          condacore.PathType(p.PathType),
			SizeInBytes:       p.SizeInBytes,
			PrefixPlaceholder: p.PrefixPlaceholder,
			NoLink:            p.NoLink,
		}
		if pd.PathType == "" {
			pd.PathType = condacore.PathHardlink
		}
		if p.SHA256 != "" {
			if d, err := condacore.ParseDigest("sha256:" + p.SHA256); err == nil {
				pd.SHA256 = &d
			}
		}
		if p.SHA256InPrefix != "" {
			if d, err := condacore.ParseDigest("sha256:" + p.SHA256InPrefix); err == nil {
				pd.SHA256InPrefix = &d
			}
		}
		switch {
		case p.FileMode != "":
			pd.FileMode = condacore.FileMode(p.FileMode)
		case p.PrefixPlaceholder != "":
			pd.FileMode = condacore.FileModeText
		default:
			pd.FileMode = condacore.FileModeBinary
		}
		out[i] = pd
	}
	return out, nil
}

// readLegacyPaths reconstructs a paths.json-equivalent manifest from the
// three files older package builds shipped instead: info/files lists every
// relative path one per line, info/has_prefix lists (placeholder, mode,
// path) tuples for text/binary files needing prefix substitution, and
// info/no_link lists paths that must be copied rather than hardlinked.
func readLegacyPaths(extractedDir string) ([]condacore.PathData, error) {
	filesRaw, err := os.ReadFile(filepath.Join(extractedDir, "info", "files"))
	if err != nil {
		return nil, &condacore.Error{Kind: condacore.ErrPrecondition, Op: condacore.OpPathNotFound, Inner: err}
	}

	hasPrefix := map[string][2]string{} // path -> [placeholder, mode]
	if b, err := os.ReadFile(filepath.Join(extractedDir, "info", "has_prefix")); err == nil {
		for _, line := range strings.Split(string(b), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			fields := strings.Fields(line)
			switch len(fields) {
			case 2: // placeholder path (binary mode implied)
				hasPrefix[fields[1]] = [2]string{fields[0], "binary"}
			case 3: // placeholder mode path
				hasPrefix[fields[2]] = [2]string{fields[0], fields[1]}
			}
		}
	}

	noLink := map[string]bool{}
	if b, err := os.ReadFile(filepath.Join(extractedDir, "info", "no_link")); err == nil {
		for _, line := range strings.Split(string(b), "\n") {
			if line = strings.TrimSpace(line); line != "" {
				noLink[line] = true
			}
		}
	}

	var out []condacore.PathData
	for _, line := range strings.Split(string(filesRaw), "\n") {
		rel := strings.TrimSpace(line)
		if rel == "" {
			continue
		}
		pd := condacore.PathData{
			Path:     rel,
			PathType: condacore.PathHardlink,
			NoLink:   noLink[rel],
			FileMode: condacore.FileModeBinary,
		}
		if hp, ok := hasPrefix[rel]; ok {
			pd.PrefixPlaceholder = hp[0]
			if hp[1] == "text" {
				pd.FileMode = condacore.FileModeText
			}
		}
		out = append(out, pd)
	}
	return out, nil
}

// Prepare builds the ordered action groups for one prefix setup: it ensures
// the target prefix exists, loads its existing PrefixData (populating
// setup.Installed for Verify's clobber detection), resolves each LinkPrec
// against the package cache to read its info/paths.json, computes the
// noarch-python site-packages remap, and groups every resulting action into
// the buckets Execute iterates in order.
func Prepare(ctx context.Context, setup *PrefixSetup, cache *pkgcache.Data, opt BuildOptions) ([]ActionGroup, error) {
	if err := os.MkdirAll(setup.TargetPrefix, 0o755); err != nil {
		return nil, &condacore.Error{Kind: condacore.ErrPermanent, Op: condacore.OpEnvironmentLocationNotFound, Inner: err}
	}
	pd, err := prefix.Open(ctx, setup.TargetPrefix)
	if err != nil {
		return nil, err
	}
	setup.Installed = pd.All()

	var groups []ActionGroup

	for _, up := range setup.UnlinkPrecs {
		existing, ok := pd.Get(up.Name)
		if !ok {
			continue // already gone; nothing to unlink
		}
		groups = append(groups, buildUnlinkGroups(setup.TargetPrefix, existing, opt)...)
	}

	var pycBatch []*action.CompileMultiPyc
	for _, lp := range setup.LinkPrecs {
		g, pyc, err := buildLinkGroups(ctx, setup.TargetPrefix, lp, cache, opt, pd)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g...)
		if pyc != nil {
			pycBatch = append(pycBatch, pyc)
		}
	}
	if len(pycBatch) > 0 {
		groups = append(groups, ActionGroup{
			Bucket:       bucketCompile,
			TargetPrefix: setup.TargetPrefix,
			Actions:      []action.Action{action.AggregateCompileMultiPyc(pycBatch)},
		})
	}

	if opt.EnvironmentsTxtPath != "" && len(setup.LinkPrecs) > 0 {
		groups = append(groups, ActionGroup{
			Bucket:       bucketRegister,
			TargetPrefix: setup.TargetPrefix,
			Actions: []action.Action{&action.RegisterEnvironmentLocation{
				EnvironmentsTxtPath: opt.EnvironmentsTxtPath,
				PrefixDir:           setup.TargetPrefix,
			}},
		})
	}

	groups = append(groups, ActionGroup{
		Bucket:       bucketFinal,
		TargetPrefix: setup.TargetPrefix,
		Actions: []action.Action{&action.UpdateHistory{
			PrefixDir:     setup.TargetPrefix,
			RemoveSpecs:   setup.RemoveSpecs,
			UpdateSpecs:   setup.UpdateSpecs,
			NeuteredSpecs: setup.NeuteredSpecs,
		}},
	})

	return groups, nil
}

func buildUnlinkGroups(prefixDir string, rec *condacore.PrefixRecord, opt BuildOptions) []ActionGroup {
	var groups []ActionGroup

	if len(rec.PathsData) > 0 || len(rec.Files) > 0 {
		var actions []action.Action
		linkTypeByPath := map[string]action.LinkType{}
		for _, pd := range rec.PathsData {
			if pd.PathType == condacore.PathDirectory {
				linkTypeByPath[pd.Path] = action.LinkDirectory
			}
		}
		files := rec.Files
		if len(files) == 0 {
			for _, pd := range rec.PathsData {
				files = append(files, pd.Path)
			}
		}
		for _, f := range files {
			lt := linkTypeByPath[f]
			actions = append(actions, &action.Unlink{PrefixDir: prefixDir, RelPath: f, LinkType: lt})
		}
		groups = append(groups, ActionGroup{Bucket: bucketUnlink, PkgData: &rec.PackageRecord, TargetPrefix: prefixDir, Actions: actions})
	}

	groups = append(groups, ActionGroup{
		Bucket:       bucketPreUnlinkScript,
		PkgData:      &rec.PackageRecord,
		TargetPrefix: prefixDir,
		Actions: []action.Action{&action.RunScript{
			PrefixDir:                 prefixDir,
			RootPrefix:                opt.RootPrefix,
			PackageName:               rec.Name,
			PackageVersion:            rec.Version.String(),
			BuildNumber:               rec.BuildNumber,
			Kind:                      action.ScriptPreUnlink,
			AllowCachePostLinkScripts: opt.AllowCachePostLinkScripts,
		}},
	})

	recCopy := rec.PackageRecord
	groups = append(groups, ActionGroup{
		Bucket:       bucketUnregister,
		PkgData:      &recCopy,
		TargetPrefix: prefixDir,
		Actions: []action.Action{&action.RemoveLinkedPackageRecord{
			Unlink: action.Unlink{PrefixDir: prefixDir, RelPath: filepath.Join("conda-meta", prefix.DistFilename(&recCopy))},
		}},
	})

	return groups
}

func buildLinkGroups(ctx context.Context, prefixDir string, rec *condacore.PackageRecord, cache *pkgcache.Data, opt BuildOptions, pd *prefix.Data) ([]ActionGroup, *action.CompileMultiPyc, error) {
	cacheRec, ok := cache.Get(rec.Key())
	if !ok || !cacheRec.IsExtracted() {
		return nil, nil, &condacore.Error{
			Kind: condacore.ErrPrecondition, Op: condacore.OpPathNotFound,
			Message: "package not extracted in cache: " + rec.DistString(),
		}
	}
	paths, err := readPaths(cacheRec.ExtractedPackageDir)
	if err != nil {
		return nil, nil, err
	}

	siteDir := ""
	if rec.Noarch == condacore.NoarchPython {
		pyVersion := "3.11"
		if existing, ok := pd.Get("python"); ok {
			pyVersion = existing.Version.String()
		}
		siteDir = sitePackagesDir(pyVersion)
	}

	var groups []ActionGroup
	var linkActions []action.Action
	var pyc *action.CompileMultiPyc
	var prefixRecordPaths []condacore.PathData

	for _, p := range paths {
		destRel := p.Path
		if siteDir != "" {
			destRel = remapNoarchPath(p.Path, siteDir)
		}
		linkType := action.LinkHardlink
		switch p.PathType {
		case condacore.PathSoftlink:
			linkType = action.LinkSoftlink
		case condacore.PathDirectory:
			linkType = action.LinkDirectory
		}
		if p.NoLink {
			linkType = action.LinkCopy
		}
		la := &action.LinkPath{
			SourceDir:      cacheRec.ExtractedPackageDir,
			RelPath:        p.Path,
			DestRelPath:    destRel,
			PrefixDir:      prefixDir,
			LinkType:       linkType,
			FileMode:       p.FileMode,
			Placeholder:    p.PrefixPlaceholder,
			ExpectedSHA256: p.SHA256,
			ExpectedSize:   p.SizeInBytes,
		}
		linkActions = append(linkActions, la)

		recorded := p
		recorded.Path = destRel
		prefixRecordPaths = append(prefixRecordPaths, recorded)

		if rec.Noarch == condacore.NoarchPython && strings.HasSuffix(p.Path, ".py") {
			if pyc == nil {
				pyc = &action.CompileMultiPyc{PrefixDir: prefixDir, PythonShortPath: pythonShortPath()}
			}
			pyc.SourceShortPaths = append(pyc.SourceShortPaths, destRel)
			pyc.TargetShortPaths = append(pyc.TargetShortPaths, destRel+"c")
		}
	}
	if len(linkActions) > 0 {
		groups = append(groups, ActionGroup{Bucket: bucketLink, PkgData: rec, TargetPrefix: prefixDir, Actions: linkActions})
	}

	groups = append(groups, ActionGroup{
		Bucket:       bucketPreLinkScript,
		PkgData:      rec,
		TargetPrefix: prefixDir,
		Actions: []action.Action{&action.RunScript{
			PrefixDir:                 prefixDir,
			RootPrefix:                opt.RootPrefix,
			PackageName:               rec.Name,
			PackageVersion:            rec.Version.String(),
			BuildNumber:               rec.BuildNumber,
			Kind:                      action.ScriptPreLink,
			AllowCachePostLinkScripts: opt.AllowCachePostLinkScripts,
		}},
	})
	groups = append(groups, ActionGroup{
		Bucket:       bucketPostLinkScript,
		PkgData:      rec,
		TargetPrefix: prefixDir,
		Actions: []action.Action{&action.RunScript{
			PrefixDir:                 prefixDir,
			RootPrefix:                opt.RootPrefix,
			PackageName:               rec.Name,
			PackageVersion:            rec.Version.String(),
			BuildNumber:               rec.BuildNumber,
			Kind:                      action.ScriptPostLink,
			AllowCachePostLinkScripts: opt.AllowCachePostLinkScripts,
		}},
	})

	prefixRec := &condacore.PrefixRecord{
		PackageRecord:          *rec,
		PackageTarballFullPath: cacheRec.PackageTarballFullPath,
		ExtractedPackageDir:    cacheRec.ExtractedPackageDir,
		PathsData:              prefixRecordPaths,
		Link:                   condacore.Link{Source: cacheRec.ExtractedPackageDir, Type: string(action.LinkHardlink)},
	}
	groups = append(groups, ActionGroup{
		Bucket:       bucketRecord,
		PkgData:      rec,
		TargetPrefix: prefixDir,
		Actions: []action.Action{&action.CreatePrefixRecord{
			PrefixDir: prefixDir,
			RelPath:   filepath.Join("conda-meta", prefix.DistFilename(rec)),
			Record:    prefixRec,
			Insert:    pd.Insert,
			Remove:    pd.Remove,
		}},
	})

	return groups, pyc, nil
}

// pythonShortPath guesses the interpreter's prefix-relative path for pyc
// compilation; a precise lookup requires the linked python record's own
// paths.json entry, which CompileMultiPyc's caller may override by setting
// PythonShortPath directly on the returned action.
func pythonShortPath() string {
	if runtime.GOOS == "windows" {
		return "python.exe"
	}
	return "bin/python"
}
