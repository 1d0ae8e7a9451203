// Package bundle implements the bundle assembler: it composes
// an OfflineBundleManifest from the content-address keys produced by the
// other components, sums their stored byte lengths, and packages the
// referenced packs into a downloadable zip archive.
package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ecodiatate/roam-bundle-engine/internal/bundleerr"
	"github.com/ecodiatate/roam-bundle-engine/internal/cache"
	"github.com/ecodiatate/roam-bundle-engine/internal/domain"
)

// Assembler builds and persists bundle manifests and their zip archives.
type Assembler struct {
	store *cache.Store
}

func New(store *cache.Store) *Assembler {
	return &Assembler{store: store}
}

// AssetInput describes one manifest-referenced asset: its content-address
// key (empty if the component never ran) and whether it's ready.
type AssetInput struct {
	Key   string
	Ready bool
}

// ManifestInput is the full set of asset readiness flags/keys the
// orchestrator supplies after running C4-C9 for one plan.
type ManifestInput struct {
	PlanID   string
	RouteKey string
	Styles   []string
	Corridor AssetInput
	Places   AssetInput
	Traffic  AssetInput
	Hazards  AssetInput
	// NavReady reports whether route_key's nav pack is cached; the nav
	// pack has no separate readiness key since its content-address *is*
	// route_key.
	NavReady bool
}

var assetKinds = map[string]cache.PackKind{
	"navpack":  cache.KindNav,
	"corridor": cache.KindCorridor,
	"places":   cache.KindPlaces,
	"traffic":  cache.KindTraffic,
	"hazards":  cache.KindHazard,
}

// BuildManifest looks up stored byte lengths for every ready asset, sums
// them, and persists the manifest under plan_id. Calling this twice with
// identical inputs yields manifests with the same referenced keys and
// bytes_total; created_at is the only field that varies.
func (a *Assembler) BuildManifest(ctx context.Context, in ManifestInput) (domain.OfflineBundleManifest, error) {
	assets := map[string]domain.AssetRef{
		"navpack":  assetRef(in.RouteKey, in.NavReady),
		"corridor": assetRef(in.Corridor.Key, in.Corridor.Ready),
		"places":   assetRef(in.Places.Key, in.Places.Ready),
		"traffic":  assetRef(in.Traffic.Key, in.Traffic.Ready),
		"hazards":  assetRef(in.Hazards.Key, in.Hazards.Ready),
	}

	var bytesTotal int64
	for name, ref := range assets {
		if ref.Status != domain.AssetReady || ref.Key == "" {
			continue
		}
		size, ok, err := a.store.PackByteSize(ctx, assetKinds[name], ref.Key)
		if err != nil {
			return domain.OfflineBundleManifest{}, fmt.Errorf("bundle: size %s: %w", name, err)
		}
		if !ok {
			ref.Status = domain.AssetError
			assets[name] = ref
			continue
		}
		bytesTotal += size
	}

	manifest := domain.OfflineBundleManifest{
		PlanID:     in.PlanID,
		RouteKey:   in.RouteKey,
		Styles:     in.Styles,
		Assets:     assets,
		BytesTotal: bytesTotal,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}

	if err := a.store.PutManifest(ctx, in.PlanID, in.RouteKey, manifest); err != nil {
		return domain.OfflineBundleManifest{}, fmt.Errorf("bundle: persist manifest: %w", err)
	}
	return manifest, nil
}

func assetRef(key string, ready bool) domain.AssetRef {
	if !ready || key == "" {
		return domain.AssetRef{Key: key, Status: domain.AssetMissing}
	}
	return domain.AssetRef{Key: key, Status: domain.AssetReady}
}

// ZipResult is the output of BuildZip: the archive bytes plus each
// member's uncompressed size, for client-side progress reporting.
type ZipResult struct {
	PlanID      string
	ZipBytes    []byte
	MemberSizes map[string]int
}

var zipMembers = []struct {
	asset    string
	filename string
	required bool
}{
	{"navpack", "navpack.json", true},
	{"corridor", "corridor.json", true},
	{"places", "places.json", false},
	{"traffic", "traffic.json", false},
	{"hazards", "hazards.json", false},
}

// BuildZip retrieves planID's manifest and every referenced pack, and
// packages them into a Deflate-compressed zip archive. Any
// missing referenced key is a hard not_found error naming the asset.
func (a *Assembler) BuildZip(ctx context.Context, planID string) (ZipResult, error) {
	manifestBlob, ok, err := a.store.GetManifestBytes(ctx, planID)
	if err != nil {
		return ZipResult{}, fmt.Errorf("bundle: read manifest: %w", err)
	}
	if !ok {
		return ZipResult{}, bundleerr.NotFound("no manifest for plan_id %s", planID)
	}

	manifest, err := decodeManifest(manifestBlob)
	if err != nil {
		return ZipResult{}, fmt.Errorf("bundle: decode manifest: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	memberSizes := make(map[string]int)

	if err := writeManifestMember(zw, manifestBlob, memberSizes); err != nil {
		return ZipResult{}, err
	}

	for _, m := range zipMembers {
		ref, present := manifest.Assets[m.asset]
		if !present || ref.Status != domain.AssetReady || ref.Key == "" {
			if m.required {
				return ZipResult{}, bundleerr.NotFound("manifest for %s has no ready %s asset", planID, m.asset)
			}
			continue
		}
		blob, ok, err := a.store.GetPackBytes(ctx, assetKinds[m.asset], ref.Key)
		if err != nil {
			return ZipResult{}, fmt.Errorf("bundle: read %s: %w", m.asset, err)
		}
		if !ok {
			return ZipResult{}, bundleerr.NotFound("%s pack %s not found in cache", m.asset, ref.Key)
		}
		w, err := zw.Create(m.filename)
		if err != nil {
			return ZipResult{}, fmt.Errorf("bundle: zip entry %s: %w", m.filename, err)
		}
		if _, err := w.Write(blob); err != nil {
			return ZipResult{}, fmt.Errorf("bundle: write %s: %w", m.filename, err)
		}
		memberSizes[m.filename] = len(blob)
	}

	if err := zw.Close(); err != nil {
		return ZipResult{}, fmt.Errorf("bundle: close zip: %w", err)
	}

	return ZipResult{PlanID: planID, ZipBytes: buf.Bytes(), MemberSizes: memberSizes}, nil
}

func writeManifestMember(zw *zip.Writer, manifestBlob []byte, memberSizes map[string]int) error {
	w, err := zw.Create("manifest.json")
	if err != nil {
		return fmt.Errorf("bundle: zip entry manifest.json: %w", err)
	}
	if _, err := w.Write(manifestBlob); err != nil {
		return fmt.Errorf("bundle: write manifest.json: %w", err)
	}
	memberSizes["manifest.json"] = len(manifestBlob)
	return nil
}

func decodeManifest(blob []byte) (domain.OfflineBundleManifest, error) {
	var m domain.OfflineBundleManifest
	if err := json.Unmarshal(blob, &m); err != nil {
		return domain.OfflineBundleManifest{}, err
	}
	return m, nil
}
