package chrome

import (
	"encoding/json"
	"fmt"
)

// elementInfo is the common shape returned by the element scripts below.
type elementInfo struct {
	Found   bool    `json:"found"`
	Visible bool    `json:"visible"`
	Checked bool    `json:"checked"`
	Present bool    `json:"present"`
	OK      bool    `json:"ok"`
	Value   string  `json:"value"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// pageInfo is what pageStateScript reports.
type pageInfo struct {
	Ready     string `json:"ready"`
	Href      string `json:"href"`
	Resources int    `json:"resources"`
	Marked    bool   `json:"marked"`
}

const visibleFunc = `function (el) {
	if (!el) return false;
	var s = getComputedStyle(el);
	if (s.visibility === 'hidden' || s.display === 'none') return false;
	var r = el.getBoundingClientRect();
	return r.width > 0 && r.height > 0;
}`

const (
	navigationMarker = "__flowtestMark"

	pageStateScript = `(function () {
	return {
		ready: document.readyState,
		href: location.href,
		resources: performance.getEntriesByType('resource').length,
		marked: window.` + navigationMarker + ` === true
	};
})()`

	markPageScript = `window.` + navigationMarker + ` = true`
)

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// elementScript wraps body in a function where el is the first match of
// selector and visible is the visibility test.
func elementScript(selector, body string) string {
	return fmt.Sprintf(`(function () {
	var el = document.querySelector(%s);
	var visible = %s;
	%s
})()`, jsString(selector), visibleFunc, body)
}

func visibilityScript(selector string) string {
	return elementScript(selector, `return {found: !!el, visible: visible(el)};`)
}

func textScript(selector string) string {
	return elementScript(selector, `if (!el) return {found: false};
	return {found: true, value: el.textContent || ''};`)
}

func inputValueScript(selector string) string {
	return elementScript(selector, `if (!el) return {found: false};
	return {found: true, value: el.value == null ? '' : String(el.value)};`)
}

func attributeScript(selector, name string) string {
	return elementScript(selector, fmt.Sprintf(`if (!el) return {found: false};
	var n = %s;
	return {found: true, present: el.hasAttribute(n), value: el.getAttribute(n) || ''};`, jsString(name)))
}

func countScript(selector string) string {
	return fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
}

func checkedScript(selector string) string {
	return elementScript(selector, `if (!el) return {found: false};
	return {found: true, checked: !!el.checked};`)
}

// centerScript scrolls the element into view and reports its center in
// viewport coordinates.
func centerScript(selector string) string {
	return elementScript(selector, `if (!el) return {found: false};
	if (el.scrollIntoView) el.scrollIntoView({block: 'center', inline: 'center'});
	var r = el.getBoundingClientRect();
	return {found: true, x: r.left + r.width / 2, y: r.top + r.height / 2};`)
}

func blurScript(selector string) string {
	return elementScript(selector, `if (el && el.blur) el.blur();
	return {found: !!el};`)
}

// fillScript replaces the element's value through the native setter so
// framework value trackers see the change, then fires input and change.
func fillScript(selector, value string) string {
	return elementScript(selector, fmt.Sprintf(`if (!el) return {found: false};
	var v = %s;
	var d = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
	if (d && d.set) { d.set.call(el, v); } else { el.value = v; }
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return {found: true, ok: true, value: String(el.value)};`, jsString(value)))
}

// selectScript picks the option whose value or label equals value.
func selectScript(selector, value string) string {
	return elementScript(selector, fmt.Sprintf(`if (!el) return {found: false};
	var v = %s;
	var opts = Array.from(el.options || []);
	var opt = opts.find(function (o) { return o.value === v; }) ||
		opts.find(function (o) { return o.label === v; });
	if (!opt) return {found: true, ok: false};
	el.value = opt.value;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return {found: true, ok: true, value: opt.value};`, jsString(value)))
}
