package scraper

// Snapshot is the raw material the ad-info strategies work on: the texts
// and attributes of the handful of elements they inspect. It is collected
// in one round trip by snapshotJS, or rebuilt from static HTML by
// BuildStaticSnapshot when in-page evaluation fails.
type Snapshot struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	BodyText     string   `json:"bodyText"`
	StatusMarker string   `json:"statusMarker"` // "Active", "Inactive" or ""
	H1           string   `json:"h1"`
	PageLabels   []string `json:"pageLabels"` // aria-label values mentioning "Page"
	H2           []string `json:"h2"`
	Strong       []string `json:"strong"` // <strong> and <b>
	Spans        []string `json:"spans"`
	ProfileSpans []string `json:"profileSpans"` // spans inside links to facebook.com/...

	PreWrap *TextBlock  `json:"preWrap"`
	AutoDir []TextBlock `json:"autoDir"`

	Buttons []string    `json:"buttons"`
	Images  []ImageInfo `json:"images"`
}

// TextBlock is the rendered text of an element plus its inner HTML.
type TextBlock struct {
	Text string `json:"text"`
	HTML string `json:"html"`
}

// ImageInfo describes one <img> element.
type ImageInfo struct {
	Src          string `json:"src"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BorderRadius string `json:"borderRadius"`
}

// VideoState is what the first <video> element exposes. Duration is nil
// until metadata has loaded.
type VideoState struct {
	Found    bool     `json:"found"`
	Src      string   `json:"src"`
	Poster   string   `json:"poster"`
	Duration *float64 `json:"duration"`
}

// snapshotJS collects a Snapshot. Errors are caught in the page and reported
// through ok/error so a partial DOM never surfaces as an evaluation failure.
const snapshotJS = `() => {
  try {
    const text = (el) => (el && el.innerText) || '';
    const all = (sel) => Array.from(document.querySelectorAll(sel));
    const spans = all('span');
    const status = spans.find((s) => s.innerText === 'Active' || s.innerText === 'Inactive');
    const preWrap = document.querySelector('div[style*="white-space: pre-wrap"]');
    const profileSpans = [];
    all('a[href*="facebook.com/"]').forEach((a) => {
      a.querySelectorAll('span').forEach((s) => profileSpans.push(text(s)));
    });
    return {
      ok: true,
      bodyText: document.body ? document.body.innerText : '',
      statusMarker: status ? status.innerText : '',
      h1: text(document.querySelector('h1')),
      pageLabels: all('[aria-label*="Page"]').map((el) => el.getAttribute('aria-label') || ''),
      h2: all('h2').map(text),
      strong: all('strong, b').map(text),
      spans: spans.map(text).filter((t) => t.trim().length <= 100),
      profileSpans: profileSpans,
      preWrap: preWrap ? { text: text(preWrap), html: preWrap.innerHTML } : null,
      autoDir: all('div[dir="auto"]').map((d) => ({ text: text(d), html: d.innerHTML })),
      buttons: all('div[role="button"]').map(text),
      images: all('img').map((img) => ({
        src: img.src || '',
        width: img.width || img.naturalWidth || 0,
        height: img.height || img.naturalHeight || 0,
        borderRadius: window.getComputedStyle(img).borderRadius || '',
      })),
    };
  } catch (e) {
    return { ok: false, error: String(e) };
  }
}`

// videoJS reads the first <video> element. A duration that is not a
// positive finite number comes back as null.
const videoJS = `() => {
  const v = document.querySelector('video');
  if (!v) return { found: false, src: '', poster: '', duration: null };
  const d = v.duration;
  return {
    found: true,
    src: v.src || v.currentSrc || '',
    poster: v.poster || '',
    duration: Number.isFinite(d) && d > 0 ? d : null,
  };
}`

// imagesJS lists the page's <img> elements.
const imagesJS = `() => Array.from(document.querySelectorAll('img')).map((img) => ({
  src: img.src || '',
  width: img.width || img.naturalWidth || 0,
  height: img.height || img.naturalHeight || 0,
  borderRadius: '',
}))`

// overlaysJS removes the cookie consent and login prompts Facebook puts over
// the page for logged-out visitors, then restores scrolling. It returns how
// many overlays were removed. Consent is declined, never accepted.
const overlaysJS = `() => {
  let removed = 0;
  const decline = document.querySelector(
    '[data-cookiebanner="accept_only_essential_button"], [data-testid="cookie-policy-manage-dialog-decline-button"]');
  if (decline) { decline.click(); removed++; }
  document.querySelectorAll('[data-testid="cookie-policy-manage-dialog"], [data-cookiebanner]').forEach((el) => {
    const box = el.closest('[role="dialog"]') || el;
    box.remove();
    removed++;
  });
  document.querySelectorAll('[role="dialog"]').forEach((d) => {
    if (d.querySelector('input[name="email"]') && d.querySelector('input[name="pass"]')) {
      d.remove();
      removed++;
    }
  });
  for (const el of document.querySelectorAll('div')) {
    const style = window.getComputedStyle(el);
    if (style.position === 'fixed' && parseInt(style.zIndex, 10) >= 900 && !el.querySelector('video')
        && el.querySelector('a[href*="/login"]')) {
      el.remove();
      removed++;
    }
  }
  document.documentElement.style.overflow = '';
  if (document.body) document.body.style.overflow = '';
  return removed;
}`
