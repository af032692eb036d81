package view

import "html/template"

var templates = template.Must(template.New("view").Parse(bubbleTemplate + heroTemplate + pageTemplate + loginTemplate))

const bubbleTemplate = `{{define "bubble"}}<div class="{{.Class}}">{{.Body}}</div>{{end}}`

const heroTemplate = `{{define "hero"}}<div class="hero" style="display:flex;gap:28px;align-items:center;padding:20px;border-radius:14px;background:linear-gradient(90deg,rgba(123,97,255,0.06),rgba(0,184,255,0.03));box-shadow:0 10px 30px rgba(11,13,24,0.06);">
  <div class="left" style="flex:1;">
    <div class="logo" style="font-size:28px;font-weight:800;background:linear-gradient(90deg,#7b61ff,#00b8ff);-webkit-background-clip:text;color:transparent;margin-bottom:6px;">{{.Title}}</div>
    <div class="lead" style="color:#273043;font-size:15px;margin-bottom:12px;">{{.Lead}}</div>
  </div>
  <div class="right" style="width:320px;text-align:center;">
    <img class="hero-img" src="{{.Src}}" alt="Hero image" style="width:100%;max-width:320px;border-radius:12px;animation:float 6s ease-in-out infinite;box-shadow:0 12px 30px rgba(11,13,24,0.08);">
  </div>
</div>{{end}}`

const pageStyle = `<style>
*{box-sizing:border-box}
body{margin:0;font-family:system-ui,-apple-system,"Segoe UI",sans-serif;background:linear-gradient(180deg,#f8fbff 0%,#ffffff 50%);color:#0b1224;display:flex;min-height:100vh}
@keyframes fadeSlideIn{0%{opacity:0;transform:translateY(10px)}100%{opacity:1;transform:translateY(0)}}
@keyframes float{0%,100%{transform:translateY(0)}50%{transform:translateY(-6px)}}
.sidebar{width:280px;flex-shrink:0;padding:24px 20px;background:#f0f2f6;display:flex;flex-direction:column;gap:8px}
.sidebar h2{font-size:20px;margin:0 0 12px}
.sidebar label,.col-main label{font-size:14px;color:#31333f}
.sidebar input,.sidebar select,.col-main input[type=text]{width:100%;padding:9px 12px;border:1px solid #d6d9e0;border-radius:8px;font-size:14px;background:#fff}
.sidebar a{margin-top:auto;font-size:13px;color:#7b61ff}
.content{flex:1;display:flex;flex-direction:column;padding:32px 40px}
.columns{display:flex;gap:40px}
.col-main{flex:3;display:flex;flex-direction:column;gap:12px}
.col-side{flex:1}
.col-main form{display:flex;flex-direction:column;gap:8px}
.col-main button{align-self:flex-start;padding:8px 18px;border:none;border-radius:8px;background:#7b61ff;color:#fff;font-size:14px;cursor:pointer}
.col-main button:disabled{opacity:.4;cursor:not-allowed}
.user-bubble{background:#7b61ff;color:white;padding:12px 16px;border-radius:16px 16px 0px 16px;max-width:80%;margin:8px 0;animation:fadeSlideIn 0.3s ease-out;box-shadow:0 4px 12px rgba(123,97,255,0.2);align-self:flex-end}
.ai-bubble{background:linear-gradient(135deg,#00b8ff,#7b61ff);color:white;padding:12px 16px;border-radius:16px 16px 16px 0px;max-width:80%;margin:8px 0;animation:fadeSlideIn 0.3s ease-out;box-shadow:0 4px 12px rgba(0,184,255,0.2)}
.ai-bubble p{margin:0 0 8px}.ai-bubble p:last-child{margin:0}
.ai-bubble pre{background:rgba(11,18,36,.35);padding:10px;border-radius:8px;overflow-x:auto}
.warning-box{background:#fffce7;color:#926c05;border-radius:8px;padding:12px 16px}
.info{background:#e8f4fd;color:#0c4a6e;border-radius:8px;padding:12px 16px;font-size:14px}
footer{margin-top:auto;padding-top:24px;color:#5c5b66;font-size:14px}
footer hr{border:none;border-top:1px solid #e3e5ea}
.login-card{margin:auto;width:100%;max-width:380px;padding:40px 32px;background:#fff;border-radius:16px;box-shadow:0 10px 30px rgba(11,13,24,0.06);display:flex;flex-direction:column;gap:12px}
.login-card input{padding:10px 12px;border:1px solid #d6d9e0;border-radius:8px}
.login-card button{padding:11px;border:none;border-radius:10px;background:#7b61ff;color:#fff;font-weight:600}
</style>`

const pageTemplate = `{{define "page"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>AI Text &amp; Image Assistant</title>
` + pageStyle + `
</head>
<body>
<aside class="sidebar">
  <h2>Configuration</h2>
  <label for="api-key">Enter your Google API Key</label>
  <input id="api-key" type="password" autocomplete="off">
  <label for="model">Model</label>
  <select id="model">{{range .Models}}<option value="{{.}}"{{if eq . $.SelectedModel}} selected{{end}}>{{.}}</option>{{end}}</select>
  {{if .AuthEnabled}}<a href="/logout">Sign out</a>{{end}}
</aside>
<div class="content">
<div class="columns">
  <section class="col-main">
    <h1>AI Chat &amp; Image Analysis</h1>
    <label for="image">Attach an image (optional)</label>
    <input id="image" type="file" accept="{{.Accept}}">
    <form id="ask">
      <label for="question">Enter your question:</label>
      <input id="question" type="text" placeholder="e.g., Explain gradient descent" autocomplete="off">
      <button id="send" type="submit">Send</button>
    </form>
    <div id="hero">{{.Hero.HTML}}</div>
    <div id="warning">{{.Warning.HTML}}</div>
    <div id="user-turn"></div>
    <div id="response"></div>
  </section>
  <section class="col-side">
    <h2>About</h2>
    <ul>
      <li>Stylish, animated chat bubbles</li>
      <li>One file uploader for both header display &amp; AI analysis</li>
      <li>Supports text &amp; image-based queries</li>
    </ul>
    <div class="info">Requires valid Google Gemini API key with Vision access.</div>
  </section>
</div>
<footer><hr>Made with ❤️ — AI Chat &amp; Image Assistant</footer>
</div>
<script>
(function(){
var keyEl=document.getElementById("api-key"),modelEl=document.getElementById("model"),
    fileEl=document.getElementById("image"),form=document.getElementById("ask"),
    qEl=document.getElementById("question"),btn=document.getElementById("send");
var slots={hero:"hero",warning:"warning",user:"user-turn",response:"response",error:"response"};
var image=null,ws=null,queue=[];
function connect(){
  var proto=location.protocol==="https:"?"wss://":"ws://";
  ws=new WebSocket(proto+location.host+"/chat/ws");
  ws.onopen=function(){while(queue.length){ws.send(queue.shift())}};
  ws.onmessage=function(ev){
    var f=JSON.parse(ev.data);
    if(f.slot==="done"){btn.disabled=false;return}
    var el=document.getElementById(slots[f.slot]);
    if(el){el.innerHTML=f.html||""}
    if(f.slot==="error"){btn.disabled=false}
  };
  ws.onclose=function(){ws=null;btn.disabled=false};
}
function send(action){
  var msg=JSON.stringify({action:action,api_key:keyEl.value,model:modelEl.value,text:qEl.value.trim(),image:image});
  if(!ws||ws.readyState>1){connect()}
  if(ws.readyState===1){ws.send(msg)}else{queue.push(msg)}
}
fileEl.onchange=function(){
  var f=fileEl.files[0];
  if(!f){image=null;send("preview");return}
  var r=new FileReader();
  r.onload=function(){image={data:r.result,mime:f.type};send("preview")};
  r.readAsDataURL(f);
};
keyEl.onchange=function(){send("preview")};
form.onsubmit=function(e){
  e.preventDefault();
  btn.disabled=true;
  document.getElementById("user-turn").innerHTML="";
  document.getElementById("response").innerHTML="";
  send("submit");
};
connect();
})();
</script>
</body>
</html>{{end}}`

const loginTemplate = `{{define "login"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>AI Chat &amp; Image Assistant - Login</title>
` + pageStyle + `
</head>
<body>
<form class="login-card" method="POST" action="/login">
  <h1>AI Chat &amp; Image Assistant</h1>
  {{if .Error}}<div class="warning-box">{{.Error}}</div>{{end}}
  <label for="username">Username</label>
  <input id="username" name="username" type="text" autocomplete="username" required autofocus>
  <label for="password">Password</label>
  <input id="password" name="password" type="password" autocomplete="current-password" required>
  <button type="submit">Sign in</button>
</form>
</body>
</html>{{end}}`
