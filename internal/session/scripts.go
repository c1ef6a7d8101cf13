package session

import (
	"fmt"
	"strings"

	"github.com/autoedu/coursepilot/internal/edu"
)

// Site holds the fixed interaction surface of one training-site deployment:
// endpoint paths and the opaque page-script triggers. Scripts are built from
// item identity fields and passed through unmodified; nothing else in the
// module knows what the page looks like.
type Site struct {
	BaseURL string
}

func (s Site) url(path string) string { return strings.TrimSuffix(s.BaseURL, "/") + path }

func (s Site) LoginURL() string       { return s.url("/userMain/goLogin") }
func (s Site) HomeURL() string        { return s.url("/sub/myPage/goMyPage") }
func (s Site) EnrollListURL() string  { return s.url("/sub/myPage/currentEnrollListAjax") }
func (s Site) ContentListURL() string { return s.url("/classRoom/curriContentsListAjax") }

// LoginTrigger is the page function the login button calls.
const LoginTrigger = "goLogin();"

// loginBounceMarker appears in the URL when the site bounces an expired or
// unauthenticated session back to login.
const LoginBounceMarker = "goLogin"

func jsStr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// EnterClassroom builds the course-entry trigger.
func (s Site) EnterClassroom(c edu.Course) string {
	return fmt.Sprintf("goClassRoom(%s,%s,%s,%s)",
		jsStr(c.CurriCd), jsStr(c.CurriYear), jsStr(c.CurriTerm), jsStr(c.EnrollNo))
}

// EnterContent builds the content-entry trigger. The argument order and the
// literal 'undefined' slot are part of the page contract.
func (s Site) EnterContent(it edu.ContentItem) string {
	return fmt.Sprintf("goContents(%s,%s,%s,%s,%s,%s,%s,%s,'undefined',%s,%s,%s)",
		jsStr(it.CourseID), jsStr(it.ContentsID),
		jsStr(it.RawWidth), jsStr(it.RawHeight),
		jsStr(it.RawStudyStatus), jsStr(it.RawWatched),
		jsStr(it.RawRequired), jsStr(it.RawPercent),
		jsStr(it.RawEncrypted), jsStr(it.RawMediaKey), jsStr(it.RawSizeApp))
}

// EnterQuiz builds the quiz-entry trigger.
func (s Site) EnterQuiz(courseID, contentsID string) string {
	return fmt.Sprintf("goQuiz(%s,%s);", jsStr(courseID), jsStr(contentsID))
}

// CloseQuizPopup closes the quiz modal the page's own way.
const CloseQuizPopup = "if (typeof closePopQ === 'function') closePopQ();"

// FetchPostScript is an async page script performing a form-encoded POST with
// the page's cookies. args: [form object, url]; calls back with the response
// text or a FETCH_ERROR-prefixed message.
const FetchPostScript = `
var callback = arguments[arguments.length - 1];
var params = new URLSearchParams(arguments[0]);
fetch(arguments[1], {
  method: 'POST',
  headers: {
    'Content-Type': 'application/x-www-form-urlencoded; charset=UTF-8',
    'X-Requested-With': 'XMLHttpRequest'
  },
  body: params.toString()
})
.then(function(r){ return r.text(); })
.then(function(t){ callback(t); })
.catch(function(e){ callback('FETCH_ERROR:' + e.message); });`

// QuizCaptureHook patches XMLHttpRequest so the quiz-entry response, which
// carries the authoritative question/answer payload, is parked on the window
// for the resolver to read.
const QuizCaptureHook = `
(function() {
  var origOpen = XMLHttpRequest.prototype.open;
  var origSend = XMLHttpRequest.prototype.send;
  window.__quizCapture = null;
  XMLHttpRequest.prototype.open = function() {
    this.__url = arguments[1];
    origOpen.apply(this, arguments);
  };
  XMLHttpRequest.prototype.send = function() {
    var xhr = this;
    this.addEventListener('load', function() {
      if (xhr.__url && xhr.__url.indexOf('getCurriQuizList') !== -1) {
        window.__quizCapture = xhr.responseText;
      }
    });
    origSend.apply(this, arguments);
  };
})();`

// ResetQuizCapture clears a previous capture before re-entering a quiz.
const ResetQuizCapture = "window.__quizCapture = null;"

// ReadQuizCapture returns the captured payload text, or null.
const ReadQuizCapture = "return window.__quizCapture;"

// QuizModalVisible probes the quiz modal container.
const QuizModalVisible = `
var el = document.querySelector('#quizList');
return !!(el && el.offsetParent !== null);`

// QuizQuestionPresent probes the first-option control of question arguments[0].
const QuizQuestionPresent = `
return !!document.querySelector('#answer1_' + arguments[0]);`

// QuizReadOrdinal reads the hidden field carrying the true ordinal of rendered
// question arguments[0]; returns null when absent.
const QuizReadOrdinal = `
var el = document.querySelector("input[name='quizOrder_" + arguments[0] + "']");
return el ? el.value : null;`

// QuizReadOptionLabels returns the option label texts rendered for question
// arguments[0], in option order.
const QuizReadOptionLabels = `
var out = [];
for (var j = 1; j <= 5; j++) {
  var id = 'answer' + j + '_' + arguments[0];
  if (!document.querySelector('#' + id)) continue;
  var l = document.querySelector("label[for='" + id + "']");
  out.push(l ? l.innerText : '');
}
return out;`

// QuizClickOption / QuizForceOption / QuizOptionChecked drive one option
// control. args: [answer index, question index].
const QuizClickOption = `
var el = document.querySelector('#answer' + arguments[0] + '_' + arguments[1]);
if (!el) return false;
el.click();
return true;`

const QuizForceOption = `
var el = document.querySelector('#answer' + arguments[0] + '_' + arguments[1]);
if (!el) return false;
el.checked = true;
el.dispatchEvent(new Event('change', {bubbles: true}));
el.dispatchEvent(new Event('click', {bubbles: true}));
return true;`

const QuizClickOptionLabel = `
var id = 'answer' + arguments[0] + '_' + arguments[1];
var l = document.querySelector("label[for='" + id + "']");
if (!l) return false;
l.click();
return true;`

const QuizOptionChecked = `
var el = document.querySelector('#answer' + arguments[0] + '_' + arguments[1]);
return !!(el && el.checked);`

// QuizSubmit clicks the modal's submit control.
const QuizSubmit = `
var btn = document.querySelector('#modalSubmit');
if (!btn) return false;
btn.click();
return true;`

// SurveyDetect scans for survey-specific markers: visible survey inputs first,
// then modal containers whose text mentions the questionnaire. Returns a
// non-empty marker description when found.
const SurveyDetect = `
var selectors = [
  "[id^='resAnswer_']", "[id^='example0_']",
  "textarea[name*='resAnswer']", "input[name*='example']",
  "[id*='Research']", "[id*='research']",
  "[id*='survey']", "[id*='Survey']"
];
for (var i = 0; i < selectors.length; i++) {
  var els = document.querySelectorAll(selectors[i]);
  for (var j = 0; j < els.length; j++) {
    if (els[j].offsetParent !== null) return 'found:' + selectors[i];
  }
}
var modals = document.querySelectorAll('.modal, .popup, [class*="modal"], [class*="pop"]');
for (var k = 0; k < modals.length; k++) {
  var m = modals[k];
  var style = window.getComputedStyle(m);
  if (style.display !== 'none' && style.visibility !== 'hidden' && m.offsetParent !== null) {
    var text = m.innerText || '';
    if (text.indexOf('설문') !== -1 || text.indexOf('만족') !== -1 ||
        text.indexOf('교육 과정') !== -1) {
      return 'modal:' + (m.id || m.className);
    }
  }
}
return '';`

// SurveyScan enumerates the rendered survey items: multiple-choice groups
// (type K, with option count) and free-text fields (type J, with element id),
// ordered by item number.
const SurveyScan = `
var results = [];
var radios = document.querySelectorAll("input[id^='example']");
var groups = {};
radios.forEach(function(r) {
  var m = r.id.match(/example(\d+)_(\d+)/);
  if (m) {
    var resNo = parseInt(m[2]);
    if (!groups[resNo]) groups[resNo] = {type:'K', resNo:resNo, count:0};
    groups[resNo].count++;
  }
});
for (var key in groups) results.push(groups[key]);
var tas = document.querySelectorAll("textarea[id^='resAnswer_'], textarea[name^='resAnswer'], textarea[id*='resAnswer']");
tas.forEach(function(ta) {
  var id = ta.id || ta.name || '';
  var m = id.match(/\d+/);
  if (m) results.push({type:'J', resNo:parseInt(m[0]), elId:id});
});
results.sort(function(a, b) { return a.resNo - b.resNo; });
return results;`

// SurveySelectChoice activates option arguments[0] of item arguments[1],
// preferring the label click and falling back to forcing the control. Returns
// the label text, or null when the control is missing.
const SurveySelectChoice = `
var id = 'example' + arguments[0] + '_' + arguments[1];
var el = document.getElementById(id);
if (!el) return null;
var l = document.querySelector("label[for='" + id + "']");
if (l) { l.click(); } else { el.click(); }
if (!el.checked) {
  el.checked = true;
  el.dispatchEvent(new Event('change', {bubbles: true}));
}
return l ? l.innerText.trim() : '';`

// SurveyFillText sets the free-text field arguments[0] to arguments[1].
const SurveyFillText = `
var ta = document.getElementById(arguments[0]);
if (!ta) {
  var tas = document.querySelectorAll("textarea[name='" + arguments[0] + "']");
  if (tas.length > 0) ta = tas[0];
}
if (!ta) return false;
ta.value = arguments[1];
ta.dispatchEvent(new Event('input', {bubbles: true}));
ta.dispatchEvent(new Event('change', {bubbles: true}));
return true;`

// SurveySubmit clicks whichever submit affordance the page renders, falling
// back to the page's own save function. Returns a marker for what fired.
const SurveySubmit = `
var selectors = [
  "button[onclick*='Research']", "button[onclick*='research']",
  "button[onclick*='save']", "button[onclick*='Save']",
  "a[onclick*='Research']", "a[onclick*='research']",
  "a[onclick*='save']", "#btnSave", ".btn-submit",
  "button.btn-primary", "input[type='submit']",
  "button[type='submit']"
];
for (var i = 0; i < selectors.length; i++) {
  var btns = document.querySelectorAll(selectors[i]);
  for (var j = 0; j < btns.length; j++) {
    if (btns[j].offsetParent !== null) {
      btns[j].click();
      return 'btn:' + selectors[i];
    }
  }
}
if (typeof saveResearch === 'function') { saveResearch(); return 'js:saveResearch'; }
return '';`

// PlayerStart tries the playback affordances in order of specificity: the
// custom player's big-play button, its SVG wrapper, then the media element
// itself. Returns which strategy fired.
const PlayerStart = `
var btn = document.querySelector('#kollus_player button.vjs-big-play-button');
if (btn) { btn.click(); return 'button'; }
var svg = document.querySelector('svg.svg-big-play-button-dims');
if (svg && svg.parentElement) { svg.parentElement.click(); return 'svg'; }
var v = document.querySelector('video');
if (v) { v.play(); return 'video'; }
return '';`

// PlayerDismissModal clears the confirmation modal some lectures open on top
// of the player. Returns whether anything was clicked.
const PlayerDismissModal = `
var btn = document.querySelector(".btn-group>button[title='Submit']");
if (btn) { btn.click(); return true; }
return false;`

// PlayerDuration reads the media element's reported duration in seconds, or
// null when unavailable.
const PlayerDuration = `
var v = document.querySelector('video');
return (v && v.duration && isFinite(v.duration)) ? v.duration : null;`

// PageText returns the visible page text, for the elapsed/total timer parse.
const PageText = "return document.body ? document.body.innerText : '';"

// CertificateScan lists certificate render triggers on the profile page as
// {title, js} pairs; the js is the page's own onclick string.
const CertificateScan = `
var out = [];
var els = document.querySelectorAll("[onclick*='getCertificateSource']");
for (var i = 0; i < els.length; i++) {
  var row = els[i].closest('tr, li, .row');
  out.push({
    title: row ? row.innerText.split('\n')[0].trim() : '',
    js: els[i].getAttribute('onclick') || ''
  });
}
return out;`
